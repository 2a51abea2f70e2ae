package feed

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"taifexflow/config"
	"taifexflow/internal/frame"
	"taifexflow/logger"
)

const readBufferSize = 64 * 1024

// Receiver joins the configured multicast groups and forwards each
// deduplicated datagram to the frames channel. One datagram carries one
// frame on this feed.
type Receiver struct {
	groups []config.MulticastGroup
	out    chan<- []byte
	dedup  *Deduper
	log    *logger.Entry
}

func NewReceiver(groups []config.MulticastGroup, out chan<- []byte, log *logger.Log) *Receiver {
	return &Receiver{
		groups: groups,
		out:    out,
		dedup:  NewDeduper(0),
		log:    log.WithComponent("multicast_receiver"),
	}
}

// Run blocks until the context ends, reading every configured group on
// its own goroutine.
func (r *Receiver) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	var dedupMu sync.Mutex

	for _, g := range r.groups {
		conn, err := listenGroup(g)
		if err != nil {
			return fmt.Errorf("join %s:%d: %w", g.Group, g.Port, err)
		}
		r.log.WithFields(logger.Fields{
			"group": g.Group,
			"port":  g.Port,
		}).Info("joined multicast group")

		wg.Add(1)
		go func(g config.MulticastGroup, conn *net.UDPConn) {
			defer wg.Done()
			defer conn.Close()
			r.readLoop(ctx, g, conn, &dedupMu)
		}(g, conn)
	}

	<-ctx.Done()
	wg.Wait()
	return nil
}

func listenGroup(g config.MulticastGroup) (*net.UDPConn, error) {
	addr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", g.Group, g.Port))
	if err != nil {
		return nil, err
	}
	var ifi *net.Interface
	if g.Interface != "" {
		if ifi, err = net.InterfaceByName(g.Interface); err != nil {
			return nil, err
		}
	}
	return net.ListenMulticastUDP("udp4", ifi, addr)
}

func (r *Receiver) readLoop(ctx context.Context, g config.MulticastGroup, conn *net.UDPConn, dedupMu *sync.Mutex) {
	buf := make([]byte, readBufferSize)
	for {
		if ctx.Err() != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			r.log.WithError(err).WithField("group", g.Group).Warn("multicast read failed")
			continue
		}
		if n == 0 {
			continue
		}

		h, err := frame.ParseHeader(buf[:n])
		if err != nil {
			r.log.WithError(err).WithField("group", g.Group).Debug("datagram too short for header")
			continue
		}
		channel, cerr := h.ChannelID()
		seq, serr := h.ChannelSeq()
		if cerr == nil && serr == nil {
			dedupMu.Lock()
			dup := r.dedup.Seen(h.TransmissionCode, channel, seq)
			dedupMu.Unlock()
			if dup {
				continue
			}
		}

		out := make([]byte, n)
		copy(out, buf[:n])
		select {
		case r.out <- out:
		case <-ctx.Done():
			return
		}
	}
}
