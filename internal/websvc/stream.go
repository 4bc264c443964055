package websvc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/AdguardTeam/HostlistCompiler/internal/compiler"
	"github.com/AdguardTeam/HostlistCompiler/internal/events"
	"github.com/AdguardTeam/HostlistCompiler/internal/hlchttp"
	"github.com/AdguardTeam/HostlistCompiler/internal/session"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/httphdr"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
)

// HdrValNDJSON is the content type of the bidirectional session stream.
const HdrValNDJSON = "application/x-ndjson"

// serveCompileSSE streams the compilation progress as server-sent events.
// The stream always terminates with a terminal event.
func (svc *Service) serveCompileSSE(
	w http.ResponseWriter,
	r *http.Request,
	req *compiler.Request,
) {
	ctx := r.Context()

	fl, ok := w.(http.Flusher)
	if !ok {
		svc.writeError(ctx, w, http.StatusInternalServerError, "streaming unsupported")

		return
	}

	hdr := w.Header()
	hdr.Set(httphdr.ContentType, hlchttp.HdrValTextEventStream)
	hdr.Set(httphdr.CacheControl, "no-cache")

	w.WriteHeader(http.StatusOK)
	fl.Flush()

	q := events.NewQueue(0)

	go func() {
		res, err := svc.comp.Compile(ctx, req, q)
		if err != nil {
			svc.logger.DebugContext(ctx, "streamed compile", slogutil.KeyError, err)

			return
		}

		svc.rules.Collect(ctx, res.Rules)
	}()

	for {
		ev, ok := q.Next(ctx)
		if !ok {
			return
		}

		data, err := json.Marshal(ev.Data)
		if err != nil {
			svc.errColl.Collect(ctx, fmt.Errorf("websvc: encoding event: %w", err))

			return
		}

		_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
		if err != nil {
			svc.logger.DebugContext(ctx, "writing event", slogutil.KeyError, err)

			return
		}

		fl.Flush()

		if ev.Type.IsTerminal() {
			return
		}
	}
}

// ndjsonFrameWriter writes session frames as newline-delimited JSON.
type ndjsonFrameWriter struct {
	enc *json.Encoder
	fl  http.Flusher
}

// type check
var _ session.FrameWriter = (*ndjsonFrameWriter)(nil)

// WriteFrame implements the [session.FrameWriter] interface for
// *ndjsonFrameWriter.
func (w *ndjsonFrameWriter) WriteFrame(_ context.Context, fr *session.Frame) (err error) {
	err = w.enc.Encode(fr)
	if err != nil {
		return err
	}

	w.fl.Flush()

	return nil
}

// handleSession serves POST /v1/session, a bidirectional frame stream.  The
// request body carries client frames as newline-delimited JSON; the response
// streams manager frames the same way.
func (svc *Service) handleSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	fl, ok := w.(http.Flusher)
	if !ok {
		svc.writeError(ctx, w, http.StatusInternalServerError, "streaming unsupported")

		return
	}

	// Keep reading client frames while the response streams.  HTTP/2 is
	// always full duplex, so an error here is fine.
	err := http.NewResponseController(w).EnableFullDuplex()
	if err != nil {
		svc.logger.DebugContext(ctx, "enabling full duplex", slogutil.KeyError, err)
	}

	w.Header().Set(httphdr.ContentType, HdrValNDJSON)
	w.WriteHeader(http.StatusOK)
	fl.Flush()

	conn := svc.sessions.NewConn(&ndjsonFrameWriter{
		enc: json.NewEncoder(w),
		fl:  fl,
	})

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		defer cancel()

		dec := json.NewDecoder(r.Body)
		for {
			fr := &session.Frame{}
			decErr := dec.Decode(fr)
			if decErr != nil {
				// Client is done sending.
				return
			}

			handleErr := conn.Handle(connCtx, fr)
			if handleErr != nil {
				svc.logger.DebugContext(ctx, "handling frame", slogutil.KeyError, handleErr)

				return
			}
		}
	}()

	err = conn.Serve(connCtx)
	if err != nil && !errors.Is(err, context.Canceled) {
		svc.logger.DebugContext(ctx, "session connection closed", slogutil.KeyError, err)
	}
}
