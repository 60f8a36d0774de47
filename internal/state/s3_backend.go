package state

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/picklr-io/converge/internal/eval"
	"github.com/picklr-io/converge/internal/ir"
)

const defaultS3Key = "converge/report.pkl"

type s3Options struct {
	bucket        string
	key           string
	region        string
	dynamoDBTable string
	encrypt       bool
	profile       string
}

func parseS3Options(config map[string]string) (s3Options, error) {
	o := s3Options{
		bucket:        config["bucket"],
		key:           config["key"],
		region:        config["region"],
		dynamoDBTable: config["dynamodb_table"],
		profile:       config["profile"],
	}
	if o.bucket == "" {
		return o, fmt.Errorf("s3 report backend requires 'bucket' configuration")
	}
	if o.key == "" {
		o.key = defaultS3Key
	}
	if o.region == "" {
		o.region = "us-east-1"
	}
	if v := config["encrypt"]; v != "" {
		enc, err := strconv.ParseBool(v)
		if err != nil {
			return o, fmt.Errorf("invalid s3 'encrypt' value %q: %w", v, err)
		}
		o.encrypt = enc
	}
	return o, nil
}

// s3Backend keeps the report in S3 with optional DynamoDB locking.
type s3Backend struct {
	s3Options

	evaluator *eval.Evaluator
	s3Client  *s3.Client
	dbClient  *dynamodb.Client
	lockID    string
}

func newS3Backend(ctx context.Context, config map[string]string, evaluator *eval.Evaluator) (Backend, error) {
	opts, err := parseS3Options(config)
	if err != nil {
		return nil, err
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(opts.region)}
	if opts.profile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(opts.profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}

	b := &s3Backend{
		s3Options: opts,
		evaluator: evaluator,
		s3Client:  s3.NewFromConfig(cfg),
	}
	if opts.dynamoDBTable != "" {
		b.dbClient = dynamodb.NewFromConfig(cfg)
	}
	return b, nil
}

func (b *s3Backend) Read(ctx context.Context) (*ir.Report, error) {
	result, err := b.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, ErrNoReport
		}
		return nil, fmt.Errorf("failed to read report from s3://%s/%s: %w", b.bucket, b.key, err)
	}
	defer result.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(result.Body); err != nil {
		return nil, fmt.Errorf("failed to read S3 object body: %w", err)
	}

	content, err := DecryptReport(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt remote report: %w", err)
	}
	return loadFromBytes(ctx, b.evaluator, content)
}

func (b *s3Backend) Write(ctx context.Context, report *ir.Report) error {
	data, err := EncryptReport([]byte(SerializeReport(report)))
	if err != nil {
		return fmt.Errorf("failed to encrypt report: %w", err)
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key),
		Body:   bytes.NewReader(data),
	}
	if b.encrypt {
		input.ServerSideEncryption = s3types.ServerSideEncryptionAes256
	}

	if _, err := b.s3Client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to write report to s3://%s/%s: %w", b.bucket, b.key, err)
	}
	return nil
}

func (b *s3Backend) Lock(ctx context.Context) error {
	if b.dbClient == nil {
		return nil
	}

	b.lockID = fmt.Sprintf("converge-%d-%d", os.Getpid(), time.Now().UnixNano())

	_, err := b.dbClient.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(b.dynamoDBTable),
		Item: map[string]dbtypes.AttributeValue{
			"LockID":  &dbtypes.AttributeValueMemberS{Value: b.key},
			"Info":    &dbtypes.AttributeValueMemberS{Value: b.lockID},
			"Created": &dbtypes.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
		},
		ConditionExpression: aws.String("attribute_not_exists(LockID)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return fmt.Errorf("%w; delete the item with LockID=%q from DynamoDB table %q if no run is in progress",
				ErrLocked, b.key, b.dynamoDBTable)
		}
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	return nil
}

// Unlock only deletes the item written by this process.
func (b *s3Backend) Unlock(ctx context.Context) error {
	if b.dbClient == nil || b.lockID == "" {
		return nil
	}

	_, err := b.dbClient.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(b.dynamoDBTable),
		Key: map[string]dbtypes.AttributeValue{
			"LockID": &dbtypes.AttributeValueMemberS{Value: b.key},
		},
		ConditionExpression: aws.String("Info = :id"),
		ExpressionAttributeValues: map[string]dbtypes.AttributeValue{
			":id": &dbtypes.AttributeValueMemberS{Value: b.lockID},
		},
	})
	if err != nil && !isConditionFailed(err) {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	b.lockID = ""
	return nil
}

func isNoSuchKey(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NoSuchKey" || apiErr.ErrorCode() == "NotFound")
}

func isConditionFailed(err error) bool {
	var ccf *dbtypes.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "ConditionalCheckFailedException"
}
