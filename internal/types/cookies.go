package types

// Cookie is a single browser cookie record as persisted by the cookie store.
// It mirrors the fields the CDP network domain exposes, flattened so the
// store does not depend on the browser driver.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires,omitempty"` // Unix seconds; <= 0 means session cookie
	Secure   bool    `json:"secure,omitempty"`
	HTTPOnly bool    `json:"httpOnly,omitempty"`
}
