package registration

import (
	"encoding/json"
	"fmt"
)

// flexString unmarshals a JSON field that the server sends as either a
// string or a bare number into a plain string, mirroring the original
// client's str(value_or_none) coercion.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*f = flexString(n.String())
		return nil
	}
	if string(b) == "null" {
		*f = ""
		return nil
	}
	return fmt.Errorf("flexString: cannot unmarshal %s", b)
}
