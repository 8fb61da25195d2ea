package classify

// Job is the classification queue payload: one stored article plus the topics
// whose keywords matched it.
type Job struct {
	ArticleID int64   `json:"article_id"`
	TopicIDs  []int64 `json:"topic_ids"`
}
