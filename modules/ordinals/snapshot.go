package ordinals

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/cockroachdb/errors"
	"github.com/hertarr/ordi/common"
	"github.com/hertarr/ordi/common/errs"
	"github.com/hertarr/ordi/internal/kvstore"
	"github.com/hertarr/ordi/modules/ordinals/config"
	"github.com/hertarr/ordi/modules/ordinals/internal/datagateway"
	"github.com/hertarr/ordi/modules/ordinals/internal/entity"
	"github.com/hertarr/ordi/modules/ordinals/internal/ordinals"
	"github.com/hertarr/ordi/modules/ordinals/internal/repository/leveldb"
	"github.com/hertarr/ordi/pkg/btcutils"
	"github.com/hertarr/ordi/pkg/logger"
	"github.com/hertarr/ordi/pkg/logger/slogx"
	"github.com/hertarr/ordi/pkg/parquetutils"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/source"
)

const (
	snapshotBatchSize     = 10_000
	defaultSnapshotRegion = "us-east-1"

	// S3 snapshots up to this size skip the temporary file
	maxInMemorySnapshotSize = 256 << 20
)

// snapshotRow is one unspent output of a UTXO snapshot.
type snapshotRow struct {
	TxId      string `parquet:"name=txid, type=BYTE_ARRAY, convertedtype=UTF8"`
	Vout      int32  `parquet:"name=vout, type=INT32"`
	Value     int64  `parquet:"name=value, type=INT64"`
	SatRanges string `parquet:"name=sat_ranges, type=BYTE_ARRAY, convertedtype=UTF8"`
}

func (r snapshotRow) toOutPointSats() (entity.OutPointSats, error) {
	hash, err := chainhash.NewHashFromStr(r.TxId)
	if err != nil {
		return entity.OutPointSats{}, errors.WithSecondaryError(errors.Wrapf(errs.DecodeError, "invalid txid %q", r.TxId), err)
	}
	if r.Vout < 0 || r.Value < 0 {
		return entity.OutPointSats{}, errors.Wrapf(errs.DecodeError, "invalid output %s:%d worth %d", r.TxId, r.Vout, r.Value)
	}
	ranges, err := ordinals.ParseSatRanges(r.SatRanges)
	if err != nil {
		return entity.OutPointSats{}, errors.Wrapf(err, "invalid sat ranges of %s:%d", r.TxId, r.Vout)
	}
	return entity.OutPointSats{
		OutPoint:  wire.OutPoint{Hash: *hash, Index: uint32(r.Vout)},
		Value:     uint64(r.Value),
		SatRanges: ranges,
	}, nil
}

// importSnapshot seeds an empty store with the snapshot of conf. A store that
// already holds a checkpoint is left untouched.
func importSnapshot(ctx context.Context, dg datagateway.OrdinalsDataGateway, network common.Network, conf config.Config) error {
	snapshot := conf.Snapshot
	if snapshot.Path == "" {
		return nil
	}
	if _, err := dg.GetLedgerState(ctx); err == nil {
		logger.InfoContext(ctx, "Store already initialized, skipping snapshot import", slogx.String("path", snapshot.Path))
		return nil
	} else if !errors.Is(err, errs.NotFound) {
		return errors.Wrap(err, "failed to get ledger state")
	}

	hash, err := chainhash.NewHashFromStr(snapshot.Hash)
	if err != nil {
		return errors.WithSecondaryError(errors.Wrap(errs.ConfigError, "invalid snapshot hash"), err)
	}

	ctx = logger.WithContext(ctx, slogx.String("path", snapshot.Path), slogx.Int64("height", snapshot.Height))
	logger.InfoContext(ctx, "Importing UTXO snapshot")

	file, err := openSnapshot(ctx, snapshot)
	if err != nil {
		return errors.WithStack(err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			logger.WarnContext(ctx, "Failed to close snapshot", slogx.Error(err))
		}
	}()

	outputs, sats, err := importSnapshotRows(ctx, dg, file, !conf.PrevOut.Remote)
	if err != nil {
		return errors.WithStack(err)
	}

	mined := ordinals.StartingSat(snapshot.Height+1, network.ChainParams())
	if sats > mined {
		return errors.Wrapf(errs.ConsistencyError, "snapshot holds %d sats, only %d were mined by height %d", sats, mined, snapshot.Height)
	}
	state := &entity.LedgerState{
		Height:           snapshot.Height,
		Hash:             *hash,
		NextSat:          mined,
		NextCursedNumber: -1,
		// the missing sats were lost before the snapshot
		LostSats: mined - sats,
	}
	if err := dg.ImportCheckpoint(ctx, state, &entity.IndexedBlock{Height: snapshot.Height, Hash: *hash}); err != nil {
		return errors.Wrap(err, "failed to import checkpoint")
	}

	logger.InfoContext(ctx, "Imported UTXO snapshot",
		slogx.Uint64("outputs", outputs),
		slogx.String("btc", btcutils.FormatSatoshi(sats)),
	)
	return nil
}

// importSnapshotRows imports every output of file. Values are stored only when withValues is set.
func importSnapshotRows(ctx context.Context, dg datagateway.OrdinalsDataGateway, file source.ParquetFile, withValues bool) (outputs, sats uint64, err error) {
	if err := parquetutils.ReadInBatches(file, snapshotBatchSize, func(rows []snapshotRow) error {
		outPoints := make([]entity.OutPointSats, 0, len(rows))
		for _, row := range rows {
			outPoint, err := row.toOutPointSats()
			if err != nil {
				return errors.WithStack(err)
			}
			outPoints = append(outPoints, outPoint)
			sats += outPoint.Value
		}
		if err := dg.ImportOutPoints(ctx, outPoints, withValues); err != nil {
			return errors.Wrap(err, "failed to import outputs")
		}
		outputs += uint64(len(outPoints))
		logger.DebugContext(ctx, "Imported snapshot batch", slogx.Uint64("outputs", outputs))
		return nil
	}); err != nil {
		return 0, 0, errors.Wrap(err, "failed to read snapshot")
	}
	return outputs, sats, nil
}

// openSnapshot opens the snapshot parquet file. Snapshots on S3 are downloaded
// first, into memory when they are small enough.
func openSnapshot(ctx context.Context, snapshot config.SnapshotConfig) (source.ParquetFile, error) {
	bucket, key, ok := parseS3Path(snapshot.Path)
	if !ok {
		file, err := local.NewLocalFileReader(snapshot.Path)
		if err != nil {
			return nil, errors.Wrapf(err, "can't open snapshot %s", snapshot.Path)
		}
		return file, nil
	}

	client, err := newS3Client(ctx, snapshot)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	head, err := client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, errors.WithSecondaryError(errors.Wrapf(errs.SourceUnavailable, "failed to stat snapshot in bucket %q and key %q", bucket, key), err)
	}
	size := aws.ToInt64(head.ContentLength)
	if size < 1 {
		return nil, errors.Wrap(errs.NotFound, "got empty snapshot")
	}

	downloader := manager.NewDownloader(client, func(d *manager.Downloader) {
		d.Concurrency = 16
		d.PartSize = 10 * 1024 * 1024
	})
	download := func(w io.WriterAt) error {
		if _, err := downloader.Download(ctx, w, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		}); err != nil {
			return errors.WithSecondaryError(errors.Wrapf(errs.SourceUnavailable, "failed to download snapshot from bucket %q and key %q", bucket, key), err)
		}
		return nil
	}

	if size <= maxInMemorySnapshotSize {
		buf := manager.NewWriteAtBuffer(make([]byte, 0, size))
		if err := download(buf); err != nil {
			return nil, errors.WithStack(err)
		}
		logger.InfoContext(ctx, "Downloaded snapshot into memory", slogx.Int64("bytes", size))
		return parquetutils.NewBuffer(buf.Bytes()), nil
	}

	file, err := os.CreateTemp("", "ordi-snapshot-*.parquet")
	if err != nil {
		return nil, errors.Wrap(err, "can't create snapshot file")
	}
	err = download(file)
	if closeErr := file.Close(); err == nil {
		err = errors.Wrap(closeErr, "can't close snapshot file")
	}
	if err != nil {
		_ = os.Remove(file.Name())
		return nil, errors.WithStack(err)
	}
	reader, err := local.NewLocalFileReader(file.Name())
	if err != nil {
		_ = os.Remove(file.Name())
		return nil, errors.Wrapf(err, "can't open snapshot %s", file.Name())
	}
	logger.InfoContext(ctx, "Downloaded snapshot", slogx.Int64("bytes", size), slogx.String("file", file.Name()))
	return &downloadedSnapshot{ParquetFile: reader, path: file.Name()}, nil
}

// downloadedSnapshot removes the downloaded file once closed.
type downloadedSnapshot struct {
	source.ParquetFile
	path string
}

func (d *downloadedSnapshot) Close() error {
	err := d.ParquetFile.Close()
	return errors.CombineErrors(err, errors.WithStack(os.Remove(d.path)))
}

// ExportSnapshot writes every live output of the store at conf.DataDir to out,
// a local path or s3://bucket/key. The engine must not be running on the store.
func ExportSnapshot(ctx context.Context, conf config.Config, out string) error {
	db, err := kvstore.OpenReadOnly(conf.DataDir)
	if err != nil {
		return errors.Wrapf(err, "can't open store %s", conf.DataDir)
	}
	repo := leveldb.NewRepository(db, conf.UndoRetention)
	defer repo.Close()

	state, err := repo.GetLedgerState(ctx)
	if err != nil {
		return errors.Wrap(err, "nothing indexed yet")
	}
	ctx = logger.WithContext(ctx, slogx.String("out", out), slogx.Int64("height", state.Height))

	bucket, key, toS3 := parseS3Path(out)
	path := out
	if toS3 {
		tmp, err := os.CreateTemp("", "ordi-snapshot-*.parquet")
		if err != nil {
			return errors.Wrap(err, "can't create snapshot file")
		}
		_ = tmp.Close()
		path = tmp.Name()
		defer os.Remove(path)
	}

	outputs, sats, err := writeSnapshot(ctx, repo, path)
	if err != nil {
		return errors.WithStack(err)
	}

	if toS3 {
		if err := uploadSnapshot(ctx, conf.Snapshot, path, bucket, key); err != nil {
			return errors.WithStack(err)
		}
	}
	logger.InfoContext(ctx, "Exported UTXO snapshot",
		slogx.String("hash", state.Hash.String()),
		slogx.Uint64("outputs", outputs),
		slogx.String("btc", btcutils.FormatSatoshi(sats)),
	)
	return nil
}

func writeSnapshot(ctx context.Context, dg datagateway.OrdinalsReaderDataGateway, path string) (outputs, sats uint64, err error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "can't create %s", path)
	}
	defer file.Close()

	w, err := parquetutils.NewWriter[snapshotRow](writerfile.NewWriterFile(file))
	if err != nil {
		return 0, 0, errors.WithStack(err)
	}
	if err := dg.IterateSatRanges(ctx, func(outPoint wire.OutPoint, ranges ordinals.SatRanges) error {
		value := ranges.Len()
		outputs++
		sats += value
		return w.Write(snapshotRow{
			TxId:      outPoint.Hash.String(),
			Vout:      int32(outPoint.Index),
			Value:     int64(value),
			SatRanges: ranges.String(),
		})
	}); err != nil {
		return 0, 0, errors.Wrap(err, "failed to write outputs")
	}
	if err := w.Close(); err != nil {
		return 0, 0, errors.WithStack(err)
	}
	return outputs, sats, errors.Wrap(file.Sync(), "can't sync snapshot")
}

func uploadSnapshot(ctx context.Context, snapshot config.SnapshotConfig, path, bucket, key string) error {
	client, err := newS3Client(ctx, snapshot)
	if err != nil {
		return errors.WithStack(err)
	}
	file, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "can't open %s", path)
	}
	defer file.Close()

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.Concurrency = 16
		u.PartSize = 10 * 1024 * 1024
	})
	if _, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   file,
	}); err != nil {
		return errors.WithSecondaryError(errors.Wrapf(errs.SourceUnavailable, "failed to upload snapshot to bucket %q and key %q", bucket, key), err)
	}
	return nil
}

// newS3Client uses the static credentials of snapshot, else the default AWS chain,
// else anonymous access for public buckets.
func newS3Client(ctx context.Context, snapshot config.SnapshotConfig) (*s3.Client, error) {
	region := snapshot.Region
	if region == "" {
		region = defaultSnapshotRegion
	}
	sdkConfig, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, errors.WithSecondaryError(errors.Wrap(errs.ConfigError, "can't load aws config"), err)
	}

	switch {
	case snapshot.AccessKeyID != "":
		sdkConfig.Credentials = credentials.NewStaticCredentialsProvider(snapshot.AccessKeyID, snapshot.SecretAccessKey, "")
	case sdkConfig.Credentials == nil:
		sdkConfig.Credentials = aws.AnonymousCredentials{}
	default:
		if _, err := sdkConfig.Credentials.Retrieve(ctx); err != nil {
			logger.DebugContext(ctx, "No aws credentials found, using anonymous access", slogx.Error(err))
			sdkConfig.Credentials = aws.AnonymousCredentials{}
		}
	}
	return s3.NewFromConfig(sdkConfig), nil
}

func parseS3Path(path string) (bucket, key string, ok bool) {
	rest, ok := strings.CutPrefix(path, "s3://")
	if !ok {
		return "", "", false
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}
