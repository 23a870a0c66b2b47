package http

// Method is an HTTP request method.
type Method uint8

const (
	MethodGet Method = iota + 1
	MethodHead
	MethodPost
	MethodPut
	MethodDelete
	MethodConnect
	MethodOptions
	MethodTrace
	MethodPatch
)

var methodNames = [...]string{
	MethodGet:     "GET",
	MethodHead:    "HEAD",
	MethodPost:    "POST",
	MethodPut:     "PUT",
	MethodDelete:  "DELETE",
	MethodConnect: "CONNECT",
	MethodOptions: "OPTIONS",
	MethodTrace:   "TRACE",
	MethodPatch:   "PATCH",
}

// Methods lists every supported method.
var Methods = []Method{
	MethodGet, MethodHead, MethodPost, MethodPut, MethodDelete,
	MethodConnect, MethodOptions, MethodTrace, MethodPatch,
}

// ParseMethod maps a case-sensitive method token to a Method.
func ParseMethod(s string) (Method, bool) {
	switch s {
	case "GET":
		return MethodGet, true
	case "HEAD":
		return MethodHead, true
	case "POST":
		return MethodPost, true
	case "PUT":
		return MethodPut, true
	case "DELETE":
		return MethodDelete, true
	case "CONNECT":
		return MethodConnect, true
	case "OPTIONS":
		return MethodOptions, true
	case "TRACE":
		return MethodTrace, true
	case "PATCH":
		return MethodPatch, true
	}
	return 0, false
}

func (m Method) String() string {
	if int(m) < len(methodNames) && methodNames[m] != "" {
		return methodNames[m]
	}
	return "UNKNOWN"
}

// Version is an HTTP protocol version.
type Version uint8

const (
	Version09 Version = iota + 1
	Version10
	Version11
)

// ParseVersion maps a version token such as "HTTP/1.1" to a Version.
func ParseVersion(s string) (Version, bool) {
	switch s {
	case "HTTP/0.9":
		return Version09, true
	case "HTTP/1.0":
		return Version10, true
	case "HTTP/1.1":
		return Version11, true
	}
	return 0, false
}

func (v Version) String() string {
	switch v {
	case Version09:
		return "HTTP/0.9"
	case Version10:
		return "HTTP/1.0"
	case Version11:
		return "HTTP/1.1"
	}
	return "HTTP/1.0"
}
