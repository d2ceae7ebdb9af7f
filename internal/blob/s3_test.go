package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awsS3 "github.com/aws/aws-sdk-go-v2/service/s3"
)

// s3RoundTripper provides a tiny fake S3 subset sufficient to exercise the
// adapter without network access.
type s3RoundTripper struct{ state map[string]s3Object }

type s3Object struct {
	body        []byte
	contentType string
}

func (m *s3RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) { //nolint:cyclop
	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}
	if req.Method == http.MethodGet && strings.Contains(req.URL.RawQuery, "list-type=2") {
		prefix := req.URL.Query().Get("prefix")
		cont := req.URL.Query().Get("continuation-token")
		var keys []string
		for k := range m.state {
			if prefix == "" || strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteString("<?xml version=\"1.0\"?><ListBucketResult>")
		if cont == "" && len(keys) > 1 {
			k := keys[0]
			st := m.state[k]
			b.WriteString("<IsTruncated>true</IsTruncated><NextContinuationToken>tok123</NextContinuationToken>")
			b.WriteString("<Contents><Key>")
			b.WriteString(k)
			b.WriteString("</Key><Size>")
			b.WriteString(fmt.Sprintf("%d", len(st.body)))
			b.WriteString("</Size><LastModified>2024-01-01T00:00:00Z</LastModified></Contents>")
		} else {
			b.WriteString("<IsTruncated>false</IsTruncated>")
			start := 0
			if cont != "" && len(keys) > 1 {
				start = 1
			}
			for _, k := range keys[start:] {
				st := m.state[k]
				b.WriteString("<Contents><Key>")
				b.WriteString(k)
				b.WriteString("</Key><Size>")
				b.WriteString(fmt.Sprintf("%d", len(st.body)))
				b.WriteString("</Size><LastModified>2024-01-01T00:00:00Z</LastModified></Contents>")
			}
		}
		b.WriteString("</ListBucketResult>")
		return &http.Response{StatusCode: 200, Body: io.NopCloser(strings.NewReader(b.String())), Header: http.Header{"Content-Type": {"application/xml"}}}, nil
	}
	switch req.Method {
	case http.MethodHead:
		if st, ok := m.state[key]; ok {
			return &http.Response{StatusCode: 200, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{
				"Content-Length": {fmt.Sprintf("%d", len(st.body))},
				"Content-Type":   {st.contentType},
				"ETag":           {"\"etag123\""},
				"Last-Modified":  {time.Now().UTC().Format(http.TimeFormat)},
			}}, nil
		}
		return &http.Response{StatusCode: 404, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{}}, nil
	case http.MethodPut:
		body, _ := io.ReadAll(req.Body)
		if _, exists := m.state[key]; !exists {
			ct := req.Header.Get("Content-Type")
			if dec, ok := decodeChunked(body); ok {
				body = dec
			}
			m.state[key] = s3Object{body: body, contentType: ct}
		}
		return &http.Response{StatusCode: 200, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{"ETag": {"\"etag\""}}}, nil
	case http.MethodGet:
		if st, ok := m.state[key]; ok {
			body := st.body
			if dec, ok := decodeChunked(body); ok {
				body = dec
			}
			return &http.Response{StatusCode: 200, Body: io.NopCloser(bytes.NewReader(body)), Header: http.Header{
				"Content-Length": {fmt.Sprintf("%d", len(body))},
				"Content-Type":   {st.contentType},
				"Last-Modified":  {time.Now().UTC().Format(http.TimeFormat)},
				"ETag":           {"\"etag\""},
			}}, nil
		}
		return &http.Response{StatusCode: 404, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{}}, nil
	case http.MethodDelete:
		delete(m.state, key)
		return &http.Response{StatusCode: 204, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{}}, nil
	}
	return &http.Response{StatusCode: 501, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{}}, nil
}

// decodeChunked decodes a minimal single-chunk aws-chunked payload:
// <hex>\r\n<body>\r\n0\r\n...
func decodeChunked(b []byte) ([]byte, bool) {
	s := string(b)
	parts := strings.Split(s, "\r\n")
	if len(parts) < 3 {
		return nil, false
	}
	n, err := strconv.ParseInt(parts[0], 16, 64)
	if err != nil || n <= 0 {
		return nil, false
	}
	if int64(len(parts[1])) != n {
		return nil, false
	}
	if parts[2] != "0" {
		return nil, false
	}
	return []byte(parts[1]), true
}

func newMockS3Store(t *testing.T) *S3Store {
	t.Helper()
	rt := &s3RoundTripper{state: make(map[string]s3Object)}
	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	if err != nil {
		t.Fatalf("cfg: %v", err)
	}
	client := awsS3.NewFromConfig(cfg, func(o *awsS3.Options) {
		o.BaseEndpoint = aws.String("https://mock.s3.local")
		o.HTTPClient = &http.Client{Transport: rt}
		o.UsePathStyle = true
	})
	ps := awsS3.NewPresignClient(client)
	return &S3Store{client: client, bucket: "test-bucket", presign: ps}
}

func TestS3StoreMockedBasicFlow(t *testing.T) {
	store := newMockS3Store(t)
	ctx := context.Background()
	info, err := store.Put(ctx, "attachments/leaf.jpg", bytes.NewReader([]byte("hello")), PutOptions{ContentType: "image/jpeg"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "attachments/leaf.jpg" || info.ContentType != "image/jpeg" || info.Size < 5 {
		t.Fatalf("unexpected info %#v", info)
	}
	if _, err := store.Put(ctx, "attachments/leaf.jpg", bytes.NewReader([]byte("ignored")), PutOptions{}); err == nil {
		t.Fatalf("expected duplicate put error")
	}
	if _, err := store.Head(ctx, "attachments/leaf.jpg"); err != nil {
		t.Fatalf("head: %v", err)
	}
	_, rc, err := store.Get(ctx, "attachments/leaf.jpg")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "hello" {
		t.Fatalf("get mismatch: %q", string(data))
	}
	list, err := store.List(ctx, "attachments/")
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %v %+v", err, list)
	}
	if url, err := store.PresignURL(ctx, "attachments/leaf.jpg", SignedURLOptions{}); err != nil || url == "" {
		t.Fatalf("presign: %v %s", err, url)
	}
	if ok, err := store.Delete(ctx, "attachments/leaf.jpg"); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
}

func TestS3StoreContentAddressed(t *testing.T) {
	store := newMockS3Store(t)
	ctx := context.Background()
	info, err := PutContent(ctx, store, strings.NewReader("certificate payload"), "application/pdf")
	if err != nil {
		t.Fatalf("put content: %v", err)
	}
	if len(info.Hash) != 64 {
		t.Fatalf("expected sha256 hash, got %q", info.Hash)
	}
	again, err := PutContent(ctx, store, strings.NewReader("certificate payload"), "application/pdf")
	if err != nil {
		t.Fatalf("put content again: %v", err)
	}
	if again.Hash != info.Hash {
		t.Fatalf("hash mismatch: %s vs %s", again.Hash, info.Hash)
	}
	_, rc, err := GetContent(ctx, store, info.Hash)
	if err != nil {
		t.Fatalf("get content: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "certificate payload" {
		t.Fatalf("round trip mismatch: %q", string(data))
	}
}

func TestS3StoreNew(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIA")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "SECRET")
	s, err := NewS3(context.Background(), S3Config{
		Bucket:          "bkt",
		Region:          "us-east-1",
		Endpoint:        "https://mock.s3.local",
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
		PathStyle:       true,
	})
	if err != nil {
		t.Fatalf("NewS3: %v", err)
	}
	if s.Driver() != DriverS3 {
		t.Fatalf("expected s3 driver, got %s", s.Driver())
	}
	if _, err := NewS3(context.Background(), S3Config{}); err == nil {
		t.Fatalf("expected error for missing bucket")
	}
}

func TestS3StoreOpenFromEnv(t *testing.T) {
	t.Setenv("HERBTRACE_BLOB_S3_BUCKET", "env-bucket")
	t.Setenv("HERBTRACE_BLOB_S3_REGION", "us-east-1")
	t.Setenv("HERBTRACE_BLOB_S3_PATH_STYLE", "true")
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIA")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "SECRET")
	if _, err := OpenS3FromEnv(context.Background()); err != nil {
		t.Fatalf("OpenS3FromEnv: %v", err)
	}
}

func TestS3StoreErrorPaths(t *testing.T) {
	store := newMockS3Store(t)
	ctx := context.Background()
	if _, err := store.Head(ctx, "nope"); err == nil {
		t.Fatalf("expected head error for missing key")
	}
	if _, _, err := store.Get(ctx, "nope"); err == nil {
		t.Fatalf("expected get error for missing key")
	}
	if _, err := store.PresignURL(ctx, "k", SignedURLOptions{Method: "PUT"}); err == nil {
		t.Fatalf("expected presign unsupported error")
	}
}

func TestS3StorePresignExpiryAndPagination(t *testing.T) {
	store := newMockS3Store(t)
	ctx := context.Background()
	if _, err := store.Put(ctx, "k.txt", bytes.NewReader([]byte("body")), PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if url, err := store.PresignURL(ctx, "k.txt", SignedURLOptions{Expiry: 30 * time.Second}); err != nil || url == "" {
		t.Fatalf("presign custom: %v %s", err, url)
	}
	if list, err := store.List(ctx, "no-such-prefix/"); err != nil || len(list) != 0 {
		t.Fatalf("expected empty list: %v %+v", err, list)
	}
	if _, err := store.Put(ctx, "k2.txt", bytes.NewReader([]byte("body2")), PutOptions{}); err != nil {
		t.Fatalf("put2: %v", err)
	}
	if list, err := store.List(ctx, "k"); err != nil || len(list) != 2 {
		t.Fatalf("expected two items via pagination: %v %+v", err, list)
	}
}

func TestS3StoreFromHeadNilBranches(t *testing.T) {
	store := newMockS3Store(t)
	info := store.fromHead("k", 10, nil, aws.String("\"etagval\""), map[string]string{"x": "y"}, nil)
	if info.ETag != "etagval" || info.ContentType != "" || info.Key != "k" || info.Size != 10 {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestDecodeChunked(t *testing.T) {
	if _, ok := decodeChunked([]byte("not-chunked")); ok {
		t.Fatalf("expected failure for non-chunked payload")
	}
	if _, ok := decodeChunked([]byte("5\r\nabc\r\n0\r\n")); ok {
		t.Fatalf("size mismatch should fail")
	}
	if b, ok := decodeChunked([]byte("5\r\nhello\r\n0\r\n")); !ok || string(b) != "hello" {
		t.Fatalf("expected decode hello")
	}
}
