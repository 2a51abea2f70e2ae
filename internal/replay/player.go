// Package replay feeds captured frame streams back through the pipeline
// at a configurable pace.
package replay

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"taifexflow/internal/frame"
	"taifexflow/logger"
)

// Player reads a capture file holding concatenated market-data frames
// and emits them one by one on the frames channel. Bytes between frames
// are skipped until the next escape byte, so raw feed dumps replay as-is.
type Player struct {
	path string
	pace time.Duration
	out  chan<- []byte
	log  *logger.Entry
}

func NewPlayer(path string, pace time.Duration, out chan<- []byte, log *logger.Log) *Player {
	return &Player{path: path, pace: pace, out: out, log: log.WithComponent("replay")}
}

// Run streams the whole file, then returns. A nil error means the file
// was exhausted; the context ending mid-file returns ctx.Err().
func (p *Player) Run(ctx context.Context) error {
	f, err := os.Open(p.path)
	if err != nil {
		return fmt.Errorf("open capture: %w", err)
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 1<<20)
	var emitted, skipped int

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b, err := r.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read capture: %w", err)
		}
		if b != frame.Esc {
			skipped++
			continue
		}

		buf, err := readFrame(r)
		if err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			// No parseable length after the escape; treat it as noise.
			skipped++
			continue
		}

		select {
		case p.out <- buf:
		case <-ctx.Done():
			return ctx.Err()
		}
		emitted++
		if p.pace > 0 {
			timer := time.NewTimer(p.pace)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}
	}

	p.log.WithFields(logger.Fields{
		"frames":        emitted,
		"skipped_bytes": skipped,
	}).Info("replay finished")
	return nil
}

// readFrame consumes one frame whose escape byte was already read.
func readFrame(r *bufio.Reader) ([]byte, error) {
	head := make([]byte, frame.HeaderSize)
	head[0] = frame.Esc
	if _, err := io.ReadFull(r, head[1:]); err != nil {
		if err == io.EOF {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	h, err := frame.ParseHeader(head)
	if err != nil {
		return nil, err
	}
	bodyLen, err := h.BodyLength()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, frame.HeaderSize+int(bodyLen)+frame.TrailerSize)
	copy(buf, head)
	if _, err := io.ReadFull(r, buf[frame.HeaderSize:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf, nil
}
