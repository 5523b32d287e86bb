// Package objectstorage implements session.Transport over S3-compatible
// object storage using aws-sdk-go, grounded on the source's own S3
// backend (its s3.go, read for request construction and provider quirks;
// not kept in this module). A Path's first segment is the bucket; the
// remaining segments join into the object key, matching spec.md §4.4.5's
// bucket/path resolve step.
package objectstorage

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"github.com/transferengine/core/internal/direntry"
	"github.com/transferengine/core/internal/enginepath"
	"github.com/transferengine/core/internal/serverid"
	enginesession "github.com/transferengine/core/internal/session"
)

// Transport drives one S3-compatible client, resolving every Path's
// first segment as a bucket name. It is stateless between calls other
// than the client/session handles, so the single-goroutine-at-a-time
// contract of session.Base.runAsync is all the safety it needs.
type Transport struct {
	client   *s3.S3
	uploader *s3manager.Uploader
	endpoint string
}

func New(endpoint string) *Transport {
	return &Transport{endpoint: endpoint}
}

func (t *Transport) Caps() enginesession.ProtoCaps {
	return enginesession.ProtoCaps{
		SupportsCDUP:     false,
		SupportsSize:     true,
		SupportsMDTM:     true,
		SupportsMFMT:     false,
		SupportsRestStor: false,
		PathSyntax:       enginepath.SyntaxUnix,
	}
}

func (t *Transport) Dial(server serverid.Server, creds serverid.Credentials) error {
	cfg := aws.NewConfig().
		WithRegion(regionFromServer(server)).
		WithCredentials(credentials.NewStaticCredentials(server.User, creds.Password, creds.Account)).
		WithS3ForcePathStyle(true)
	if t.endpoint != "" {
		cfg = cfg.WithEndpoint(t.endpoint)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return err
	}
	t.client = s3.New(sess)
	t.uploader = s3manager.NewUploader(sess)

	_, err = t.client.ListBuckets(&s3.ListBucketsInput{})
	return err
}

func regionFromServer(server serverid.Server) string {
	if server.Encoding != "" {
		return server.Encoding
	}
	return "us-east-1"
}

func (t *Transport) Close() error {
	t.client, t.uploader = nil, nil
	return nil
}

// bucketAndKey splits a Path into its bucket (first segment) and the
// remaining key, optionally appending file.
func bucketAndKey(path enginepath.Path, file string) (bucket, key string) {
	segs := path.Segments()
	if len(segs) == 0 {
		return "", file
	}
	bucket = segs[0]
	rest := segs[1:]
	if file != "" {
		rest = append(append([]string{}, rest...), file)
	}
	key = strings.Join(rest, "/")
	return bucket, key
}

func (t *Transport) Pwd() (enginepath.Path, error) {
	return enginepath.New(enginepath.SyntaxUnix, "/"), nil
}

// Cwd only needs to confirm the target exists: a bucket must be listable
// and a prefix must contain at least one object, since object storage has
// no real directories.
func (t *Transport) Cwd(path enginepath.Path) error {
	bucket, key := bucketAndKey(path, "")
	if bucket == "" {
		return nil
	}
	if key == "" {
		_, err := t.client.HeadBucket(&s3.HeadBucketInput{Bucket: aws.String(bucket)})
		return err
	}
	prefix := key + "/"
	out, err := t.client.ListObjectsV2(&s3.ListObjectsV2Input{
		Bucket:  aws.String(bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int64(1),
	})
	if err != nil {
		return err
	}
	if len(out.Contents) == 0 && len(out.CommonPrefixes) == 0 {
		return fmt.Errorf("objectstorage: %s not found", path.SafePath())
	}
	return nil
}

func (t *Transport) Cdup() error { return enginesession.ErrNotSupported }

// Mkdir on object storage either creates a bucket (top-level path) or is
// a no-op placeholder: a zero-byte key ending in "/" so the prefix shows
// up in a later listing, the common workaround object-storage clients use
// since there is no real directory object.
func (t *Transport) Mkdir(path enginepath.Path) error {
	segs := path.Segments()
	if len(segs) == 1 {
		_, err := t.client.CreateBucket(&s3.CreateBucketInput{Bucket: aws.String(segs[0])})
		return err
	}
	bucket, key := bucketAndKey(path, "")
	_, err := t.client.PutObject(&s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key + "/"),
		Body:   bytes.NewReader(nil),
	})
	return err
}

func (t *Transport) Rmdir(path enginepath.Path) error {
	segs := path.Segments()
	if len(segs) == 1 {
		_, err := t.client.DeleteBucket(&s3.DeleteBucketInput{Bucket: aws.String(segs[0])})
		return err
	}
	bucket, key := bucketAndKey(path, "")
	_, err := t.client.DeleteObject(&s3.DeleteObjectInput{Bucket: aws.String(bucket), Key: aws.String(key + "/")})
	return err
}

func (t *Transport) List(path enginepath.Path, hidden bool) ([]direntry.Entry, error) {
	segs := path.Segments()
	if len(segs) == 0 {
		return t.listBuckets()
	}
	bucket, key := bucketAndKey(path, "")
	prefix := key
	if prefix != "" {
		prefix += "/"
	}

	var out []direntry.Entry
	input := &s3.ListObjectsV2Input{
		Bucket:    aws.String(bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	}
	err := t.client.ListObjectsV2Pages(input, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, cp := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.StringValue(cp.Prefix), prefix), "/")
			if name == "" || (!hidden && strings.HasPrefix(name, ".")) {
				continue
			}
			out = append(out, direntry.Entry{Name: name, Size: -1, Flags: direntry.FlagDir})
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.StringValue(obj.Key), prefix)
			if name == "" || strings.HasSuffix(name, "/") {
				continue
			}
			if !hidden && strings.HasPrefix(name, ".") {
				continue
			}
			out = append(out, direntry.Entry{
				Name:           name,
				Size:           aws.Int64Value(obj.Size),
				ModTime:        aws.TimeValue(obj.LastModified),
				HasModTime:     obj.LastModified != nil,
				PreciseModTime: true,
			})
		}
		return true
	})
	return out, err
}

func (t *Transport) listBuckets() ([]direntry.Entry, error) {
	out, err := t.client.ListBuckets(&s3.ListBucketsInput{})
	if err != nil {
		return nil, err
	}
	entries := make([]direntry.Entry, 0, len(out.Buckets))
	for _, b := range out.Buckets {
		entries = append(entries, direntry.Entry{
			Name:       aws.StringValue(b.Name),
			Size:       -1,
			ModTime:    aws.TimeValue(b.CreationDate),
			HasModTime: b.CreationDate != nil,
			Flags:      direntry.FlagDir,
		})
	}
	return entries, nil
}

func (t *Transport) Delete(path enginepath.Path, file string) error {
	bucket, key := bucketAndKey(path, file)
	_, err := t.client.DeleteObject(&s3.DeleteObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	return err
}

func (t *Transport) Rename(fromPath enginepath.Path, fromFile string, toPath enginepath.Path, toFile string) error {
	srcBucket, srcKey := bucketAndKey(fromPath, fromFile)
	dstBucket, dstKey := bucketAndKey(toPath, toFile)
	_, err := t.client.CopyObject(&s3.CopyObjectInput{
		Bucket:     aws.String(dstBucket),
		Key:        aws.String(dstKey),
		CopySource: aws.String(srcBucket + "/" + srcKey),
	})
	if err != nil {
		return err
	}
	_, err = t.client.DeleteObject(&s3.DeleteObjectInput{Bucket: aws.String(srcBucket), Key: aws.String(srcKey)})
	return err
}

// Chmod has no object-storage equivalent; ACL management is out of scope
// for this engine, matching spec.md's exclusion of permission bits for
// the object-storage backend.
func (t *Transport) Chmod(path enginepath.Path, file, perm string) error {
	return enginesession.ErrNotSupported
}

func (t *Transport) Raw(text string) (string, error) {
	return "", enginesession.ErrNotSupported
}

func (t *Transport) Size(path enginepath.Path, file string) (int64, error) {
	head, err := t.headObject(path, file)
	if err != nil {
		return 0, err
	}
	return aws.Int64Value(head.ContentLength), nil
}

func (t *Transport) ModTime(path enginepath.Path, file string) (time.Time, error) {
	head, err := t.headObject(path, file)
	if err != nil {
		return time.Time{}, err
	}
	return aws.TimeValue(head.LastModified), nil
}

func (t *Transport) headObject(path enginepath.Path, file string) (*s3.HeadObjectOutput, error) {
	bucket, key := bucketAndKey(path, file)
	return t.client.HeadObject(&s3.HeadObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
}

// SetModTime has no portable object-storage equivalent (mtime isn't a
// writable attribute); some providers expose it via custom metadata, but
// doing so would require rewriting the object, so this is a no-op like
// the source's providers that lack MFMT-equivalent support.
func (t *Transport) SetModTime(path enginepath.Path, file string, mtime time.Time) error {
	return nil
}

func (t *Transport) Retrieve(path enginepath.Path, file, localPath string, offset int64) (int64, error) {
	bucket, key := bucketAndKey(path, file)
	input := &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)}
	if offset > 0 {
		input.Range = aws.String(fmt.Sprintf("bytes=%d-", offset))
	}
	obj, err := t.client.GetObject(input)
	if err != nil {
		return 0, err
	}
	defer obj.Body.Close()

	flags := os.O_WRONLY | os.O_CREATE
	if offset > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	out, err := os.OpenFile(localPath, flags, 0o644)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	return io.Copy(out, obj.Body)
}

// Store always uploads the whole object: object storage has no append or
// byte-range write, so a "resumed" upload here re-uploads from byte zero
// regardless of offset/useRest, the same limitation the source's own S3
// backend documents for provider-side resumption.
func (t *Transport) Store(path enginepath.Path, file, localPath string, offset int64, useRest bool) (int64, error) {
	bucket, key := bucketAndKey(path, file)
	in, err := os.Open(localPath)
	if err != nil {
		return 0, err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return 0, err
	}

	_, err = t.uploader.Upload(&s3manager.UploadInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   in,
	})
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
