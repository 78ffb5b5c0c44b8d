package web

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vadiminshakov/riskdesk/internal/domain"
)

const heartbeatInterval = 20 * time.Second

func startStream(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	return flusher, true
}

func (s *Server) handleReportStream(w http.ResponseWriter, r *http.Request) {
	if s.Reports == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "report store not available")
		return
	}
	flusher, ok := startStream(w)
	if !ok {
		return
	}

	// send a comment heartbeat so proxies keep connection
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	pollTicker := time.NewTicker(reportPollInterval)
	defer pollTicker.Stop()

	lastIndex := s.parseLastEventID(r.Header.Get("Last-Event-ID"), r.URL.Query().Get("last_event_id"))
	isFirstLoad := lastIndex == 0
	sendReports := func() error {
		records, err := s.Reports.ReportsAfter(lastIndex)
		if err != nil {
			return err
		}

		toSend := records
		if isFirstLoad {
			toSend = thinRecords(records)
			isFirstLoad = false
		}

		for _, record := range toSend {
			payload, err := json.Marshal(record.Report)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "id: %d\n", record.Index)
			fmt.Fprintf(w, "event: risk\n")
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
			lastIndex = record.Index
		}
		return nil
	}

	if err := sendReports(); err != nil {
		s.logger.Error("risk stream initial load", zap.Error(err))
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case <-pollTicker.C:
			if err := sendReports(); err != nil {
				s.logger.Warn("risk stream poll err", zap.Error(err))
			}
		}
	}
}

func (s *Server) handleTradeStream(w http.ResponseWriter, r *http.Request) {
	if s.Events == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "approval events not available")
		return
	}
	flusher, ok := startStream(w)
	if !ok {
		return
	}

	ch := s.Events.Subscribe()
	defer s.Events.Unsubscribe(ch)

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	// open the stream so clients see headers before the first event
	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case ev, ok := <-ch:
			if !ok {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				s.logger.Warn("failed to encode approval event", zap.Error(err))
				continue
			}
			fmt.Fprintf(w, "event: %s\n", ev.To)
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

// parseLastEventID extracts an SSE event ID from either the Last-Event-ID header or a query parameter.
// The header is preferred.
func (s *Server) parseLastEventID(headerVal, queryVal string) uint64 {
	idStr := strings.TrimSpace(headerVal)
	if idStr == "" {
		idStr = strings.TrimSpace(queryVal)
	}
	if idStr == "" {
		return 0
	}

	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		s.logger.Debug("invalid last event id", zap.String("id", idStr), zap.Error(err))
		return 0
	}
	return id
}

// thinRecords keeps the last 100 records and exponentially thins the older ones.
func thinRecords(records []domain.ReportRecord) []domain.ReportRecord {
	const keepLast = 100
	if len(records) <= keepLast {
		return records
	}

	older := records[:len(records)-keepLast]
	var thinned []domain.ReportRecord

	skip := 1
	for i := len(older) - 1; i >= 0; i-- {
		thinned = append([]domain.ReportRecord{older[i]}, thinned...)
		i -= skip
		// double skip every 12 records
		if (len(older)-1-i)%12 == 0 {
			skip *= 2
		}
	}

	return append(thinned, records[len(records)-keepLast:]...)
}

func gzipHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Set("Vary", "Accept-Encoding")

		gz := gzip.NewWriter(w)
		defer gz.Close()

		next.ServeHTTP(&gzipResponseWriter{ResponseWriter: w, writer: gz}, r)
	})
}

type gzipResponseWriter struct {
	http.ResponseWriter
	writer *gzip.Writer
}

func (w *gzipResponseWriter) WriteHeader(statusCode int) {
	w.Header().Del("Content-Length")
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *gzipResponseWriter) Write(b []byte) (int, error) {
	return w.writer.Write(b)
}
