package orders

const TopicChanges = "bowls.changes"

// Partition key = entity key, so every event of one order (or bowl) keeps
// its order on the broker.
func PartitionKey(e Envelope) []byte { return []byte(e.Key()) }
