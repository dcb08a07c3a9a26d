package backend

import (
	"fmt"

	"github.com/go-faster/jx"
)

// ParseError reports a backend payload that does not describe a usable
// product.
type ParseError struct {
	Field  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid product payload: %s: %s", e.Field, e.Reason)
}

// StatusError is an unexpected backend status outside of the documented
// outcomes.
type StatusError struct {
	Status int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend status %d", e.Status)
	}
	return fmt.Sprintf("backend status %d: %s", e.Status, e.Detail)
}

// errorDetail extracts the human readable reason of a backend error body:
// the first of "error", "detail" or "message" holding a string or an array
// starting with a string. It returns "" when none is found.
func errorDetail(body []byte) string {
	found := map[string]string{}
	d := jx.DecodeBytes(body)
	if d.Next() != jx.Object {
		return ""
	}
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		k := string(key)
		switch k {
		case "error", "detail", "message":
		default:
			return d.Skip()
		}

		switch d.Next() {
		case jx.String:
			s, err := d.Str()
			if err != nil {
				return err
			}
			found[k] = s
			return nil
		case jx.Array:
			return d.Arr(func(d *jx.Decoder) error {
				if _, ok := found[k]; ok || d.Next() != jx.String {
					return d.Skip()
				}
				s, err := d.Str()
				if err != nil {
					return err
				}
				found[k] = s
				return nil
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return ""
	}
	for _, k := range []string{"error", "detail", "message"} {
		if s := found[k]; s != "" {
			return s
		}
	}
	return ""
}
