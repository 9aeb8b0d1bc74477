package exchange

// Property names set by batch consumers
const (
	PropertyBatchIndex       = "StreamKitBatchIndex"
	PropertyBatchSize        = "StreamKitBatchSize"
	PropertyBatchComplete    = "StreamKitBatchComplete"
	PropertyPendingExchanges = "StreamKitPendingExchanges"
	PropertyConsumer         = "StreamKitConsumer"
)

// Header names set by the timer consumer
const (
	HeaderTimerName      = "StreamKitTimerName"
	HeaderTimerPeriod    = "StreamKitTimerPeriod"
	HeaderTimerCounter   = "StreamKitTimerCounter"
	HeaderTimerFiredTime = "StreamKitTimerFiredTime"
)

// HeaderItemID is the standard header carrying the source item identifier
const HeaderItemID = "StreamKitItemID"
