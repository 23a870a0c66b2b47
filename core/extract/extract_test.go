package extract

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/searchktools/archive-server/core/extensions"
	"github.com/searchktools/archive-server/core/http"
	"github.com/searchktools/archive-server/core/respond"
)

func newRequest(t *testing.T, target string) *http.Request {
	t.Helper()
	req := http.AcquireRequest()
	t.Cleanup(func() { http.ReleaseRequest(req) })
	req.Method = http.MethodGet
	req.Version = http.Version11
	req.Resource = http.ParseResource(target)
	return req
}

func TestHeaderExtractors(t *testing.T) {
	req := newRequest(t, "/")
	req.Headers.Add("X-Page", "7")
	req.Headers.Add("User-Agent", "reader/1.0")

	v, err := Header("user-agent")(req)
	require.NoError(t, err)
	assert.Equal(t, "reader/1.0", v)

	_, err = Header("X-Missing")(req)
	var missing *MissingError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "HTTP request header with key `X-Missing` could not be found", err.Error())
	assert.Equal(t, http.StatusBadRequest, missing.Respond().Status)

	opt, err := OptionalHeader("X-Missing")(req)
	require.NoError(t, err)
	assert.False(t, opt.Ok)
	assert.Equal(t, "none", opt.Or("none"))

	page, err := ParseHeader[int]("X-Page")(req)
	require.NoError(t, err)
	assert.Equal(t, 7, page)

	_, err = ParseHeader[bool]("X-Page")(req)
	var parse *ParseError
	require.ErrorAs(t, err, &parse)
	assert.Contains(t, err.Error(), "HTTP request header with key `X-Page` could not be parsed")
}

func TestParamExtractors(t *testing.T) {
	req := newRequest(t, "/story/42/3")
	req.Params.Append("id", "42")
	req.Params.Append("chapter", "abc")

	id, err := ParseParam[uint64]("id")(req)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), id)

	_, err = ParseParam[int]("chapter")(req)
	assert.EqualError(t, err,
		"HTTP request URL parameter with key `chapter` could not be parsed: strconv.Atoi: parsing \"abc\": invalid syntax")

	_, err = Param("ext")(req)
	assert.EqualError(t, err, "HTTP request URL parameters did not contain a value with the key `ext`")

	opt, err := OptionalParam("chapter")(req)
	require.NoError(t, err)
	assert.Equal(t, Optional[string]{Value: "abc", Ok: true}, opt)

	all, err := Params()(req)
	require.NoError(t, err)
	assert.Equal(t, 2, all.Len())
}

func TestParseQuery(t *testing.T) {
	tests := []struct {
		raw  string
		want map[string]string
	}{
		{"", map[string]string{}},
		{"?q=fluff", map[string]string{"q": "fluff"}},
		{"q=fluff&page=2", map[string]string{"q": "fluff", "page": "2"}},
		{"a=1&a=2", map[string]string{"a": "2"}},
		{"flag&x=1", map[string]string{"x": "1"}},
		{"=v&&x=", map[string]string{"x": ""}},
		{"name=hello%20world&t=%E2%9C%93", map[string]string{"name": "hello world", "t": "✓"}},
		{"bad=%zz", map[string]string{"bad": "%zz"}},
		{"plus=a+b", map[string]string{"plus": "a+b"}},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			q := ParseQuery(tt.raw)
			got := map[string]string{}
			for k, v := range q.All() {
				got[k] = v
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQueryExtractors(t *testing.T) {
	req := newRequest(t, "/search?q=fluff&page=2&wait=1s&flag")

	q, err := Query("q")(req)
	require.NoError(t, err)
	assert.Equal(t, "fluff", q)

	page, err := ParseQueryValue[int]("page")(req)
	require.NoError(t, err)
	assert.Equal(t, 2, page)

	wait, err := ParseQueryValue[time.Duration]("wait")(req)
	require.NoError(t, err)
	assert.Equal(t, time.Second, wait)

	_, err = Query("flag")(req)
	assert.EqualError(t, err, "HTTP request URL query did not contain a value with the key `flag`")

	size, err := OptionalQueryValue[int]("size")(req)
	require.NoError(t, err)
	assert.Equal(t, 10, size.Or(10))

	_, err = OptionalQueryValue[int]("q")(req)
	assert.Error(t, err)

	assert.True(t, extensions.Has[QueryMap](req.Extensions), "decoded query is cached")

	raw, err := RawQuery()(req)
	require.NoError(t, err)
	assert.Equal(t, "q=fluff&page=2&wait=1s&flag", raw)

	_, err = RawQuery()(newRequest(t, "/search"))
	assert.EqualError(t, err, "HTTP request URL did not contain a query")
}

type story struct {
	Title string `json:"title" msgpack:"title" validate:"required"`
	Words int    `json:"words" msgpack:"words" validate:"gte=0"`
}

func TestBodyExtractors(t *testing.T) {
	req := newRequest(t, "/story")
	req.Body = []byte(`{"title":"Orbit","words":1200}`)

	s, err := JSON[story]()(req)
	require.NoError(t, err)
	assert.Equal(t, story{Title: "Orbit", Words: 1200}, s)

	text, err := Text()(req)
	require.NoError(t, err)
	assert.Equal(t, string(req.Body), text)

	req.Body = []byte(`{"words":10}`)
	_, err = JSON[story]()(req)
	var bodyErr *BodyError
	require.ErrorAs(t, err, &bodyErr)
	assert.Equal(t, http.StatusBadRequest, bodyErr.Respond().Status)

	req.Body = []byte(`{`)
	_, err = JSON[story]()(req)
	assert.ErrorAs(t, err, &bodyErr)

	req.Body = nil
	_, err = JSON[story]()(req)
	assert.ErrorAs(t, err, &bodyErr)

	req.Body = []byte{0xff, 0xfe}
	_, err = Text()(req)
	assert.ErrorAs(t, err, &bodyErr)
}

func TestMsgPackAndProtoBody(t *testing.T) {
	req := newRequest(t, "/story")

	packed, err := respond.MsgPackCodec{}.Encode(story{Title: "Drift", Words: 3})
	require.NoError(t, err)
	req.Body = packed
	s, err := MsgPack[story]()(req)
	require.NoError(t, err)
	assert.Equal(t, "Drift", s.Title)

	encoded, err := proto.Marshal(wrapperspb.String("chapter one"))
	require.NoError(t, err)
	req.Body = encoded
	msg, err := ProtoBody[wrapperspb.StringValue]()(req)
	require.NoError(t, err)
	assert.Equal(t, "chapter one", msg.GetValue())

	req.Body = []byte{0xff}
	_, err = ProtoBody[wrapperspb.StringValue]()(req)
	var bodyErr *BodyError
	assert.ErrorAs(t, err, &bodyErr)
}

type catalog struct{ name string }

func TestDataAndExtension(t *testing.T) {
	req := newRequest(t, "/")

	_, err := Data[*catalog]()(req)
	var missing *MissingDataError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, http.StatusServiceUnavailable, missing.Respond().Status)

	req.Data = extensions.New()
	extensions.Insert(req.Data, &catalog{name: "archive"})
	c, err := Data[*catalog]()(req)
	require.NoError(t, err)
	assert.Equal(t, "archive", c.name)

	ext, err := Extension[time.Time]()(req)
	require.NoError(t, err)
	assert.False(t, ext.Ok)
}

func TestRunAndArg(t *testing.T) {
	req := newRequest(t, "/story/9")
	req.Params.Append("id", "9")

	args, err := Run(req, []Extractor{ParseParam[int]("id"), Path(), Method()})
	require.NoError(t, err)
	assert.Equal(t, 9, Arg[int](args, 0))
	assert.Equal(t, "/story/9", Arg[string](args, 1))
	assert.Equal(t, http.MethodGet, Arg[http.Method](args, 2))
	assert.Panics(t, func() { Arg[string](args, 0) })
	assert.Panics(t, func() { Arg[int](args, 3) })

	calls := 0
	counting := Func[int](func(*http.Request) (int, error) {
		calls++
		return 0, nil
	})
	_, err = Run(req, []Extractor{Param("missing"), counting})
	assert.Error(t, err)
	assert.Zero(t, calls, "extraction stops at the first rejection")

	args, err = Run(req, nil)
	require.NoError(t, err)
	assert.Empty(t, args)
}

type level int

func (l *level) UnmarshalText(b []byte) error {
	switch string(b) {
	case "low":
		*l = 1
	case "high":
		*l = 2
	default:
		return errors.New("unknown level")
	}
	return nil
}

func TestParseValue(t *testing.T) {
	b, err := ParseValue[bool]("true")
	require.NoError(t, err)
	assert.True(t, b)

	f, err := ParseValue[float64]("2.5")
	require.NoError(t, err)
	assert.Equal(t, 2.5, f)

	_, err = ParseValue[int8]("300")
	assert.Error(t, err)

	u, err := ParseValue[uint16]("65535")
	require.NoError(t, err)
	assert.Equal(t, uint16(65535), u)

	l, err := ParseValue[level]("high")
	require.NoError(t, err)
	assert.Equal(t, level(2), l)

	_, err = ParseValue[level]("mid")
	assert.Error(t, err)

	_, err = ParseValue[struct{}]("x")
	assert.Error(t, err)
}
