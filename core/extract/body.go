package extract

import (
	"errors"
	"fmt"
	"reflect"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"google.golang.org/protobuf/proto"

	"github.com/searchktools/archive-server/core/extensions"
	"github.com/searchktools/archive-server/core/http"
	"github.com/searchktools/archive-server/core/respond"
)

var (
	errEmptyBody   = errors.New("empty body")
	errInvalidUTF8 = errors.New("body is not valid UTF-8")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Body yields the raw request body, which may be empty.
func Body() Func[[]byte] {
	return func(req *http.Request) ([]byte, error) {
		return req.Body, nil
	}
}

// Text yields the body as a UTF-8 string.
func Text() Func[string] {
	return func(req *http.Request) (string, error) {
		if !utf8.Valid(req.Body) {
			return "", &BodyError{Err: errInvalidUTF8}
		}
		return string(req.Body), nil
	}
}

// Decode yields the body decoded into T with codec. Struct values are
// checked against their `validate` tags afterwards.
func Decode[T any](codec respond.Codec) Func[T] {
	return func(req *http.Request) (T, error) {
		var v T
		if len(req.Body) == 0 {
			return v, &BodyError{Err: errEmptyBody}
		}
		if err := codec.Decode(req.Body, &v); err != nil {
			return v, &BodyError{Err: fmt.Errorf("%s: %w", codec.Name(), err)}
		}
		if err := validateStruct(v); err != nil {
			return v, &BodyError{Err: err}
		}
		return v, nil
	}
}

// JSON decodes a JSON body into T.
func JSON[T any]() Func[T] {
	return Decode[T](respond.JSONCodec{})
}

// MsgPack decodes a MessagePack body into T.
func MsgPack[T any]() Func[T] {
	return Decode[T](respond.MsgPackCodec{})
}

// ProtoBody decodes a Protocol Buffers body into a new *T.
func ProtoBody[T any, PT interface {
	*T
	proto.Message
}]() Func[PT] {
	return func(req *http.Request) (PT, error) {
		msg := PT(new(T))
		if err := proto.Unmarshal(req.Body, msg); err != nil {
			return nil, &BodyError{Err: fmt.Errorf("protobuf: %w", err)}
		}
		return msg, nil
	}
}

func validateStruct(v any) error {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil
	}
	return validate.Struct(v)
}

// Data yields app-wide data registered with core.Data. A missing value
// is a server configuration error and renders a 503.
func Data[T any]() Func[T] {
	return func(req *http.Request) (T, error) {
		v, ok := extensions.Get[T](req.Data)
		if !ok {
			return v, &MissingDataError{Type: reflect.TypeFor[T]().String()}
		}
		return v, nil
	}
}

// Extension yields a value a before-middleware stored on the request.
func Extension[T any]() Func[Optional[T]] {
	return func(req *http.Request) (Optional[T], error) {
		if v, ok := extensions.Get[T](req.Extensions); ok {
			return some(v), nil
		}
		return Optional[T]{}, nil
	}
}
