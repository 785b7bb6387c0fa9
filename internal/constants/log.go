package constants

const (
	KEY_APP_NAME           = "app"
	KEY_REQUEST_ID         = "requestId"
	KEY_TRACE_ID           = "traceId"
	KEY_SPAN_ID            = "spanId"
	KEY_PROCESS            = "process"
	KEY_TAG                = "tag"
	KEY_TOKEN              = "token"
	KEY_CONFIG             = "config"
	KEY_REQUEST            = "request"
	KEY_HEADER             = "header"
	KEY_BODY               = "body"
	KEY_REQUEST_HOST       = "host"
	KEY_REQUEST_IP         = "requesterIP"
	KEY_REQUEST_METHOD     = "requestMethod"
	KEY_REQUEST_URI        = "requestURI"
	KEY_REQUEST_URL        = "requestURL"
	KEY_USER_ID            = "userId"
	KEY_DEVICE_ID          = "deviceId"
	KEY_IDENTITY           = "identity"
	KEY_ITEM_ID            = "itemId"
	KEY_INSTANCE_ID        = "instanceId"
	KEY_INDEX              = "index"
	KEY_CART_ITEMS         = "cartItems"
	KEY_CART_ITEMS_COUNT   = "cartItemsCount"
	KEY_CART_TOTAL         = "cartTotal"
	KEY_SYNC_STATE         = "syncState"
	KEY_ATTEMPT            = "attempt"
	KEY_GENERATION         = "generation"
	KEY_STORAGE_KEY        = "storageKey"
	KEY_CACHE_KEY          = "cacheKey"
	KEY_REMOTE_BACKEND     = "remoteBackend"
	KEY_DOCUMENT_EXISTS    = "documentExists"
	KEY_CHANNEL            = "channel"
	KEY_DB_URL             = "dbUrl"
	KEY_SECRET_NAME        = "secretName"
	KEY_CHECKOUT_GRAND     = "grandTotal"
	KEY_CHECKOUT_RECEIPTID = "receiptId"
)
