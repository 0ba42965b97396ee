// Package progress defines the event types carried on the Progress Bus
// (spec §4.L): a string-topic publish/subscribe hub that fans stage
// updates out to push-channel clients.
package progress

import "fmt"

// Topic identifies a Progress Bus channel. Topics are plain strings by
// design (spec §4.L) so that new stages and sources don't require wire
// schema changes.
type Topic string

// Well-known topic families.
const (
	topicSyncProgress = "sync:%s:progress"
	topicSyncComplete = "sync:%s:complete"
	topicSyncError    = "sync:%s:error"
	TopicEmbeddings   = Topic("embeddings:progress")
	TopicRAGProgress  = Topic("rag:progress")
	TopicRAGComplete  = Topic("rag:complete")
	TopicRAGError     = Topic("rag:error")
)

// SyncProgressTopic returns the per-source sync progress topic.
func SyncProgressTopic(source string) Topic { return Topic(fmt.Sprintf(topicSyncProgress, source)) }

// SyncCompleteTopic returns the per-source sync completion topic.
func SyncCompleteTopic(source string) Topic { return Topic(fmt.Sprintf(topicSyncComplete, source)) }

// SyncErrorTopic returns the per-source sync error topic.
func SyncErrorTopic(source string) Topic { return Topic(fmt.Sprintf(topicSyncError, source)) }

// Event is one message delivered on the Progress Bus. ScopeID is the
// sync id or query id the event belongs to; UserID lets push-channel
// subscribers filter to their own events at the edge.
type Event struct {
	Topic     Topic
	ScopeID   string
	UserID    string
	Timestamp int64 // unix nanoseconds, stamped by the publisher
	Stage     string
	Message   string
	Percent   int
	Counts    map[string]int
	Error     string
}

// ClampPercent bounds a percentage to [0, 100]. The Embedding Pipeline
// caps progress at 99 until its final "complete" event (spec §4.F); this
// helper only guards the absolute bounds, callers apply the 99 cap.
func ClampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
