// Package capture archives disclosed book depth as parquet files,
// locally and optionally to S3. It is an export path only; the SDK never
// reads anything back.
package capture

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	appconfig "taifexflow/config"
	"taifexflow/internal/model"
	"taifexflow/logger"
)

// Row is the flattened parquet layout: one row per disclosed level.
type Row struct {
	Product        string `parquet:"name=product, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timestamp      int64  `parquet:"name=timestamp, type=INT64"`
	Seq            int64  `parquet:"name=seq, type=INT64"`
	Side           string `parquet:"name=side, type=BYTE_ARRAY, convertedtype=UTF8"`
	Level          int32  `parquet:"name=level, type=INT32"`
	Price          int64  `parquet:"name=price, type=INT64"`
	Size           int64  `parquet:"name=size, type=INT64"`
	DecimalLocator int32  `parquet:"name=decimal_locator, type=INT32"`
}

// memoryFile adapts a byte buffer to the parquet-go source.ParquetFile
// interface for in-memory writing.
type memoryFile struct {
	buf *bytes.Buffer
}

func newMemoryFile() *memoryFile {
	return &memoryFile{buf: &bytes.Buffer{}}
}

func (m *memoryFile) Create(string) (source.ParquetFile, error) { return m, nil }
func (m *memoryFile) Open(string) (source.ParquetFile, error)   { return m, nil }
func (m *memoryFile) Seek(int64, int) (int64, error)            { return int64(m.buf.Len()), nil }
func (m *memoryFile) Read(b []byte) (int, error)                { return m.buf.Read(b) }
func (m *memoryFile) Write(b []byte) (int, error)               { return m.buf.Write(b) }
func (m *memoryFile) Close() error                              { return nil }

type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Writer buffers top-of-book snapshots and flushes them in parquet
// batches on size or interval.
type Writer struct {
	cfg appconfig.CaptureConfig
	in  <-chan model.TopOfBook
	log *logger.Entry

	s3Client s3API

	ctx     context.Context
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool

	rows []Row
}

func NewWriter(cfg appconfig.CaptureConfig, in <-chan model.TopOfBook, log *logger.Log) (*Writer, error) {
	w := &Writer{
		cfg: cfg,
		in:  in,
		log: log.WithComponent("capture_writer"),
	}
	if cfg.S3.Enabled {
		opts := []func(*awsconfig.LoadOptions) error{}
		if cfg.S3.Region != "" {
			opts = append(opts, awsconfig.WithRegion(cfg.S3.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
		if err != nil {
			return nil, fmt.Errorf("load AWS configuration: %w", err)
		}
		w.s3Client = s3.NewFromConfig(awsCfg)
	}
	return w, nil
}

// Start launches the consumer goroutine.
func (w *Writer) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("capture writer already running")
	}
	w.running = true
	w.ctx = ctx
	w.mu.Unlock()

	if err := os.MkdirAll(w.cfg.Directory, 0o755); err != nil {
		return fmt.Errorf("create capture directory: %w", err)
	}

	w.wg.Add(1)
	go w.loop()
	w.log.WithFields(logger.Fields{
		"directory":  w.cfg.Directory,
		"batch_size": w.cfg.BatchSize,
	}).Info("capture writer started")
	return nil
}

// Stop flushes any buffered rows and waits for the consumer to exit.
func (w *Writer) Stop() {
	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
	w.wg.Wait()
	w.flush()
	w.log.Info("capture writer stopped")
}

func (w *Writer) loop() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case tob, ok := <-w.in:
			if !ok {
				return
			}
			w.append(tob)
			if len(w.rows) >= w.cfg.BatchSize {
				w.flush()
			}
		case <-ticker.C:
			w.flush()
		}
	}
}

func (w *Writer) append(tob model.TopOfBook) {
	ts := tob.Timestamp.UnixMilli()
	add := func(side string, lvl int, pl model.PriceLevel) {
		w.rows = append(w.rows, Row{
			Product:        tob.Product,
			Timestamp:      ts,
			Seq:            int64(tob.Seq),
			Side:           side,
			Level:          int32(lvl),
			Price:          pl.Price,
			Size:           int64(pl.Size),
			DecimalLocator: int32(tob.DecimalLocator),
		})
	}
	for i, pl := range tob.Bids {
		add("bid", i+1, pl)
	}
	for i, pl := range tob.Asks {
		add("ask", i+1, pl)
	}
	if tob.DerivedBid != nil {
		add("derived_bid", 1, *tob.DerivedBid)
	}
	if tob.DerivedAsk != nil {
		add("derived_ask", 1, *tob.DerivedAsk)
	}
}

func (w *Writer) flush() {
	if len(w.rows) == 0 {
		return
	}
	rows := w.rows
	w.rows = nil

	batchID := uuid.NewString()
	data, err := encodeParquet(rows)
	if err != nil {
		w.log.WithError(err).Error("failed to encode parquet batch")
		return
	}

	name := fmt.Sprintf("%s_%s.parquet", time.Now().UTC().Format("2006-01-02_15"), batchID)
	path := filepath.Join(w.cfg.Directory, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		w.log.WithError(err).WithField("path", path).Error("failed to write parquet file")
		return
	}
	w.log.WithFields(logger.Fields{
		"batch_id": batchID,
		"rows":     len(rows),
		"path":     path,
	}).Info("capture batch written")

	if w.s3Client != nil {
		w.upload(name, data)
	}
}

func (w *Writer) upload(name string, data []byte) {
	key := name
	if w.cfg.S3.Prefix != "" {
		key = w.cfg.S3.Prefix + "/" + name
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_, err := w.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(w.cfg.S3.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		w.log.WithError(err).WithField("key", key).Error("failed to upload capture batch")
		return
	}
	w.log.WithFields(logger.Fields{
		"bucket": w.cfg.S3.Bucket,
		"key":    key,
	}).Info("capture batch uploaded")
}

func encodeParquet(rows []Row) ([]byte, error) {
	mf := newMemoryFile()
	pw, err := writer.NewParquetWriter(mf, new(Row), 2)
	if err != nil {
		return nil, err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for i := range rows {
		if err := pw.Write(rows[i]); err != nil {
			return nil, err
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, err
	}
	return mf.buf.Bytes(), nil
}
