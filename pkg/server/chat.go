package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"kageforge-hq/forge/pkg/providers"
	"kageforge-hq/forge/pkg/telemetry/logging"
)

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if s.config.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	}

	var body ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrorDetail{
				Message: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
				Type:    ErrorTypeInvalidRequest,
				Code:    CodeRequestTooLarge,
			})
			return
		}
		writeError(w, http.StatusBadRequest, ErrorDetail{
			Message: "invalid JSON body: " + err.Error(),
			Type:    ErrorTypeInvalidRequest,
			Code:    CodeInvalidJSON,
		})
		return
	}

	if err := s.validateStruct(&body); err != nil {
		status, detail := mapError(err)
		writeError(w, status, detail)
		return
	}

	ctx := r.Context()
	req := body.toProvider()
	req.ID = logging.GetRequestID(ctx)
	if req.UserID == "" {
		req.UserID = r.Header.Get(UserIDHeader)
	}
	if req.UserID != "" {
		ctx = logging.WithUser(ctx, req.UserID)
	}
	r = r.WithContext(ctx)

	if req.Stream {
		s.streamChat(w, r, req)
		return
	}

	res, err := s.deps.Gateway.Complete(ctx, req)
	if err != nil {
		s.writeGatewayError(w, r, err)
		return
	}

	failovers := 0
	if res.Route != nil {
		failovers = res.Route.Failovers()
	}
	setProvenance(w, res.Response)
	writeJSON(w, http.StatusOK, newChatCompletionResponse(req.ID, res.Response, failovers))
}

// streamChat writes the completion as server-sent events. Errors before the
// first byte are reported as regular JSON errors; later errors are sent as
// an error event.
func (s *Server) streamChat(w http.ResponseWriter, r *http.Request, req *providers.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, ErrorDetail{
			Message: "streaming unsupported by the connection",
			Type:    ErrorTypeServerError,
			Code:    CodeInternalError,
		})
		return
	}

	res, stream, err := s.deps.Gateway.CompleteStream(r.Context(), req)
	if err != nil {
		s.writeGatewayError(w, r, err)
		return
	}
	defer stream.Close()

	model := req.Model
	switch {
	case res.Response != nil:
		setProvenance(w, res.Response)
		model = res.Response.Model
	case res.Route != nil:
		w.Header().Set(ProviderHeader, res.Route.Provider)
		model = res.Route.Model
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		d, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			_, detail := mapError(err)
			s.logger.WarnContext(r.Context(), "stream failed", "error", err)
			writeEvent(w, ErrorResponse{Error: detail})
			flusher.Flush()
			return
		}
		writeEvent(w, newChunk(req.ID, model, d))
		flusher.Flush()
	}

	if final := stream.Response(); final != nil {
		writeEvent(w, &ChatCompletionResponse{
			ID:      completionID(req.ID),
			Object:  "chat.completion.chunk",
			Created: created(final.Created),
			Model:   final.Model,
			Choices: []ChatChoice{},
			Usage:   usageOf(final.Usage),
			Gateway: &GatewayInfo{
				Provider:   final.Provider,
				Cost:       final.Cost,
				LatencyMS:  final.Latency.Milliseconds(),
				CacheLayer: final.CacheLayer,
				Similarity: final.Similarity,
			},
		})
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func writeEvent(w io.Writer, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}

func (s *Server) writeGatewayError(w http.ResponseWriter, r *http.Request, err error) {
	status, detail := mapError(err)
	if status >= 500 {
		s.logger.ErrorContext(r.Context(), "completion failed", "status", status, "error", err)
	} else {
		s.logger.WarnContext(r.Context(), "completion rejected", "status", status, "code", detail.Code)
	}
	writeError(w, status, detail)
}

func setProvenance(w http.ResponseWriter, resp *providers.Response) {
	w.Header().Set(ProviderHeader, resp.Provider)
	if resp.CacheLayer != "" {
		w.Header().Set(CacheHeader, "hit; layer="+resp.CacheLayer)
	} else {
		w.Header().Set(CacheHeader, "miss")
	}
}

