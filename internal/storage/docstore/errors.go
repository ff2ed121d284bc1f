package docstore

import (
	"fmt"
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/astroplay-pos/internal/domain/product"
)

// APIError is an error response of the document database.
type APIError struct {
	Status  int
	Message string
	// Fields holds per-field failures in the order the server listed them.
	Fields []product.FieldError
}

func (e *APIError) Error() string {
	if len(e.Fields) > 0 {
		f := e.Fields[0]
		return fmt.Sprintf("docstore: %d %s (%s: %s)", e.Status, e.Message, f.Field, f.Message)
	}
	return fmt.Sprintf("docstore: %d %s", e.Status, e.Message)
}

// Unwrap exposes the domain meaning of the response.
func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusNotFound:
		return product.ErrNotFound
	case len(e.Fields) > 0:
		return &product.ValidationError{Fields: e.Fields}
	case e.Status == http.StatusBadRequest:
		return &product.ValidationError{Message: e.Message}
	default:
		return nil
	}
}

// decodeAPIError parses an error body of the form
//
//	{"code":400,"message":"...","data":{"name":{"code":"...","message":"..."}}}
//
// A body that is not JSON still yields an *APIError carrying the status.
func decodeAPIError(status int, body []byte) error {
	apiErr := &APIError{Status: status, Message: http.StatusText(status)}
	if len(body) == 0 {
		return apiErr
	}

	d := jx.DecodeBytes(body)
	if d.Next() != jx.Object {
		return apiErr
	}
	// A malformed tail keeps whatever was decoded before it.
	_ = d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "message":
			if d.Next() != jx.String {
				return d.Skip()
			}
			msg, err := d.Str()
			if err != nil {
				return err
			}
			if msg != "" {
				apiErr.Message = msg
			}
			return nil
		case "data":
			fields, err := decodeFieldErrors(d)
			if err != nil {
				return err
			}
			apiErr.Fields = fields
			return nil
		default:
			return d.Skip()
		}
	})
	return apiErr
}

func decodeFieldErrors(d *jx.Decoder) ([]product.FieldError, error) {
	if d.Next() != jx.Object {
		return nil, d.Skip()
	}
	var fields []product.FieldError
	err := d.Obj(func(d *jx.Decoder, field string) error {
		if d.Next() != jx.Object {
			return d.Skip()
		}
		fe := product.FieldError{Field: field}
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			if d.Next() != jx.String {
				return d.Skip()
			}
			v, err := d.Str()
			if err != nil {
				return err
			}
			switch key {
			case "code":
				fe.Code = v
			case "message":
				fe.Message = v
			}
			return nil
		}); err != nil {
			return err
		}
		fields = append(fields, fe)
		return nil
	})
	return fields, err
}
