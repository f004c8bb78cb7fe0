package model

// Platform identifies the purchase backend a product, receipt or transaction
// originates from. The string values are stable identifiers used in
// validation request bodies and persisted records.
type Platform string

const (
	PlatformAppleAppStore Platform = "ios-appstore"
	PlatformGooglePlay    Platform = "android-playstore"
	PlatformBraintree     Platform = "braintree"
	PlatformWindowsStore  Platform = "windows-store-transaction"
	PlatformTest          Platform = "test"
)

func (p Platform) String() string {
	return string(p)
}
