package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/ceramicnetwork/go-fanout"
	"github.com/ceramicnetwork/go-fanout/common"
	"github.com/ceramicnetwork/go-fanout/models"
)

var _ models.BlobStore = &S3Store{}
var _ models.CollectionRepository = &S3Store{}

const blobPrefix = "blobs/"
const collectionPrefix = "collections/"

// S3Store keeps content-addressed blobs and the remote copy of each owner's collection.
type S3Store struct {
	client *s3.Client
	logger models.Logger
	bucket string
}

func NewS3Store(logger models.Logger, s3Client *s3.Client) *S3Store {
	bucket := "fanout-" + fanout.EnvTag() + "-blobs"
	return &S3Store{s3Client, logger, bucket}
}

// Put stores the blob under its CID. The body is buffered so that the CID is known before the upload starts.
func (s *S3Store) Put(ctx context.Context, name string, body io.Reader, size int64, progress func(written int64)) (*models.BlobRef, error) {
	buf := bytes.NewBuffer(make([]byte, 0, size))
	if _, err := io.Copy(buf, body); err != nil {
		return nil, fmt.Errorf("put: error reading %s: %w", name, err)
	}
	blobCid, err := models.ContentId(buf.Bytes())
	if err != nil {
		return nil, err
	}
	key := blobPrefix + blobCid
	putObjectIn := s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          newProgressReader(buf.Bytes(), progress),
		ContentLength: int64(buf.Len()),
		Metadata:      map[string]string{"name": name},
	}

	httpCtx, httpCancel := context.WithTimeout(ctx, common.DefaultRpcWaitTime)
	defer httpCancel()

	if _, err = s.client.PutObject(httpCtx, &putObjectIn); err != nil {
		return nil, err
	}
	s.logger.Debugf("put: stored %s as %s", name, key)
	return &models.BlobRef{Cid: blobCid, Url: fmt.Sprintf("s3://%s/%s", s.bucket, key)}, nil
}

func (s *S3Store) Load(ctx context.Context, ownerId string) (models.Collection, error) {
	getObjectIn := s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(collectionPrefix + ownerId + ".json"),
	}

	httpCtx, httpCancel := context.WithTimeout(ctx, common.DefaultRpcWaitTime)
	defer httpCancel()

	getObjectOut, err := s.client.GetObject(httpCtx, &getObjectIn)
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return models.Collection{}, nil
		}
		return nil, err
	}
	defer getObjectOut.Body.Close()

	collection := models.Collection{}
	if err = json.NewDecoder(getObjectOut.Body).Decode(&collection); err != nil {
		return nil, err
	}
	return collection, nil
}

func (s *S3Store) Save(ctx context.Context, ownerId string, collection models.Collection) error {
	if jsonBytes, err := json.Marshal(collection); err != nil {
		return err
	} else {
		httpCtx, httpCancel := context.WithTimeout(ctx, common.DefaultRpcWaitTime)
		defer httpCancel()

		putObjectIn := s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(collectionPrefix + ownerId + ".json"),
			Body:        bytes.NewReader(jsonBytes),
			ContentType: aws.String("application/json"),
		}
		if _, err = s.client.PutObject(httpCtx, &putObjectIn); err != nil {
			return err
		} else {
			s.logger.Debugf("stored collection for owner: %s", ownerId)
		}
	}
	return nil
}
