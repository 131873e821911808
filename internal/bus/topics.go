package bus

// Conceptual topic and procedure names. A deployment prefix (for example
// "uk.ac.standrews.cs.mamoc.") is prepended through Topics.
const (
	OffloadRequestTopic   = "offloading.request"
	FileReceivedTopic     = "file.received"
	StatsAnnounceTopic    = "stats.announce"
	OffloadResultTopic    = "offloading.result"
	ProgressiveTransferFn = "fileTransfer.progressive"
)

// Topics resolves names under a common prefix.
type Topics struct {
	Prefix string
}

func (t Topics) Name(name string) string {
	return t.Prefix + name
}

func (t Topics) OffloadRequest() string { return t.Name(OffloadRequestTopic) }
func (t Topics) FileReceived() string   { return t.Name(FileReceivedTopic) }
func (t Topics) StatsAnnounce() string  { return t.Name(StatsAnnounceTopic) }
func (t Topics) OffloadResult() string  { return t.Name(OffloadResultTopic) }
func (t Topics) Progressive() string    { return t.Name(ProgressiveTransferFn) }
