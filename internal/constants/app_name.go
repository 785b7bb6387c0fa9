package constants

const (
	APP_STOREFRONT     = "storefront"
	APP_CART_SERVICE   = "cart-service"
	APP_CART_CLIENT    = "cart-client"
	APP_IDENTITY       = "identity"
	AUDIENCE_USER      = "audience-user"
	ISSUER_STOREFRONT  = "storefront-identity"
	COLLECTION_CARTS   = "carts"
	CHANNEL_CART       = "cart_changes"
	LOCAL_KEY_CART     = "cart_v1"
	LOCAL_KEY_AUTH     = "auth_v1"
	HEADER_DEVICE_ID   = "X-Device-Id"
	DEFAULT_DEVICE_ID  = "default"
	ENV_DEVELOPMENT    = "development"
	REMOTE_MEMORY      = "memory"
	REMOTE_REDIS       = "redis"
	REMOTE_POSTGRES    = "postgres"
	REMOTE_FIRESTORE   = "firestore"
	AUTH_PROVIDER_JWT  = "jwt"
	AUTH_PROVIDER_FIRE = "firebase"
)
