package constants

import "time"

var (
	VERSION = "0.1.0"

	// Flow ids start with this prefix.
	FLOW_PREFIX = "F."

	// Client ids start with this prefix.
	CLIENT_PREFIX = "C."
)

const (
	// The attribute under which collection records are stored.
	COLLECTION_ATTRIBUTE = "aff4:sequential_value"

	// Records of a collection live under this child of the
	// collection id.
	COLLECTION_RESULTS = "Results"

	// An attribute of the form "index:sc_<i>" at timestamp <t>
	// indicates that record number i was stored at timestamp t. The
	// suffix is stored as the value.
	INDEX_ATTRIBUTE_PREFIX = "index:sc_"

	// The largest possible suffix - maximum value expressible by 6
	// hex digits.
	MAX_SUFFIX = 1<<24 - 1

	// How many records between index entries. The full index must
	// fit comfortably in RAM.
	INDEX_SPACING = 1024

	// Do not write an index entry for records younger than this - a
	// late write at an earlier timestamp would silently shift every
	// ordinal after it.
	INDEX_WRITE_DELAY = 3 * time.Minute

	// How long the background updater waits before indexing a
	// collection that was queued.
	INDEX_UPDATE_DELAY = 240 * time.Second

	// Records are read from the datastore in pages of this size.
	COLLECTION_PAGE_SIZE = 1000

	// Attributes used by the flow store.
	CLIENT_METADATA_ATTRIBUTE = "metadata:client"
	FLOW_OBJECT_ATTRIBUTE     = "flow:object"
	FLOW_REQUEST_ATTRIBUTE    = "flow:request"
	FLOW_RESPONSE_ATTRIBUTE   = "flow:response"
	FLOW_STATUS_ATTRIBUTE     = "flow:status"
	CLIENT_MESSAGE_ATTRIBUTE  = "task:message"
	MESSAGE_HANDLER_ATTRIBUTE = "handler:request"

	// Most message handler requests leased in one go.
	MESSAGE_HANDLER_LEASE_LIMIT = 1000

	// How long a message handler may take before its requests are
	// handed out again.
	MESSAGE_HANDLER_LEASE_TIME = 10 * time.Minute

	// Default processing lease a worker takes on a flow.
	DEFAULT_PROCESSING_TIME = 60 * time.Second

	// The processing queue polls for due notifications this often.
	PROCESSING_QUEUE_POLL = 200 * time.Millisecond

	// When a flow is leased by someone else we retry after this long.
	LEASE_RETRY_DELAY = 5 * time.Second
)
