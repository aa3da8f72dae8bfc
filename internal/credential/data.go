package credential

import "maps"

// Well-known data keys.
const (
	KeyToken            = "token"
	KeyClientID         = "clientId"
	KeyClientSecret     = "clientSecret"
	KeyPrivateKeyFile   = "privateKeyFile"
	KeyAuthorizationURL = "authorizationUrl"
	KeyScope            = "scope"
)

// Data is the persisted secret material of one scheme.
//
// Data is not safe for concurrent use. Callers that share a provider between
// goroutines must serialize EnsureCredential and GetCredential themselves.
type Data struct {
	scheme Scheme
	values map[string]string
}

// NewData returns empty data for scheme. It panics if scheme is empty.
func NewData(scheme Scheme) *Data {
	return RestoreData(scheme, nil)
}

// RestoreData rebuilds data loaded by the configuration layer. The values map is copied.
func RestoreData(scheme Scheme, values map[string]string) *Data {
	if scheme == "" {
		panic("credential: empty scheme")
	}
	d := &Data{scheme: scheme, values: make(map[string]string, len(values))}
	maps.Copy(d.values, values)
	return d
}

// Scheme returns the scheme the data belongs to.
func (d *Data) Scheme() Scheme { return d.scheme }

// Get returns the value stored under key.
func (d *Data) Get(key string) (string, bool) {
	v, ok := d.values[key]
	return v, ok
}

// Set stores value under key, replacing any previous value.
func (d *Data) Set(key, value string) {
	d.values[key] = value
}

// Values returns a copy of the stored key/value pairs.
func (d *Data) Values() map[string]string {
	return maps.Clone(d.values)
}

// Len returns the number of stored keys.
func (d *Data) Len() int { return len(d.values) }
