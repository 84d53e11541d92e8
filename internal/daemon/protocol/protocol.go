// Package protocol decodes cell execution requests from the wire and
// encodes outcomes back.
package protocol

import (
	"bufio"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/grovetools/cellkernel/errors"
	"github.com/grovetools/cellkernel/internal/daemon/engine"
	"github.com/grovetools/cellkernel/pkg/outcome"
)

const (
	// MaxRequestBytes bounds a single request body or frame.
	MaxRequestBytes = 8 << 20

	// HeaderOutcome carries the outcome kind on HTTP responses.
	HeaderOutcome = "X-Cellkernel-Outcome"
	// HeaderOutcomeID carries the outcome id on HTTP responses.
	HeaderOutcomeID = "X-Cellkernel-Outcome-Id"

	// FramingHTTP and FramingNUL name the listener framings.
	FramingHTTP = "http"
	FramingNUL  = "nul"
)

// NUL framing status bytes.
const (
	StatusOK            byte = '0'
	StatusUnprocessable byte = '1'
	StatusFailed        byte = '2'
)

// wireRequest uses pointers so missing fields can be told apart from zero
// values.
type wireRequest struct {
	Index     *int    `json:"index"`
	Fragment  *int    `json:"fragment"`
	Filename  *string `json:"filename"`
	Workspace *string `json:"workspace"`
	Contents  *string `json:"contents"`
}

// DecodeJSON reads one JSON request. Workspace may be omitted; every other
// field is required.
func DecodeJSON(r io.Reader) (engine.Request, error) {
	var w wireRequest
	dec := json.NewDecoder(io.LimitReader(r, MaxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&w); err != nil {
		return engine.Request{}, errors.RequestFraming("invalid JSON body", err)
	}

	switch {
	case w.Index == nil:
		return engine.Request{}, errors.RequestFraming("missing field: index", nil)
	case w.Fragment == nil:
		return engine.Request{}, errors.RequestFraming("missing field: fragment", nil)
	case w.Filename == nil:
		return engine.Request{}, errors.RequestFraming("missing field: filename", nil)
	case w.Contents == nil:
		return engine.Request{}, errors.RequestFraming("missing field: contents", nil)
	}

	req := engine.Request{
		Index:    *w.Index,
		Fragment: *w.Fragment,
		Filename: *w.Filename,
		Contents: *w.Contents,
	}
	if w.Workspace != nil {
		req.Workspace = *w.Workspace
	}
	return req, nil
}

// frameFields is the fixed field order of a NUL-delimited request.
var frameFields = []string{"index", "fragment", "filename", "workspace", "contents"}

// ReadFrame reads one NUL-delimited request: index, fragment, filename,
// workspace and contents, each terminated by a NUL byte. It returns io.EOF
// when the peer closes before sending anything.
func ReadFrame(r *bufio.Reader) (engine.Request, error) {
	values := make([]string, len(frameFields))
	total := 0
	for i, name := range frameFields {
		field, err := r.ReadString(0)
		total += len(field)
		if err != nil {
			if err == io.EOF && i == 0 && field == "" {
				return engine.Request{}, io.EOF
			}
			return engine.Request{}, errors.RequestFraming(fmt.Sprintf("incomplete frame at field %q", name), err)
		}
		if total > MaxRequestBytes {
			return engine.Request{}, errors.RequestFraming("frame too large", nil)
		}
		values[i] = field[:len(field)-1]
	}

	index, err := strconv.Atoi(values[0])
	if err != nil {
		return engine.Request{}, errors.RequestFraming("index is not an integer", err)
	}
	fragment, err := strconv.Atoi(values[1])
	if err != nil {
		return engine.Request{}, errors.RequestFraming("fragment is not an integer", err)
	}

	return engine.Request{
		Index:     index,
		Fragment:  fragment,
		Filename:  values[2],
		Workspace: values[3],
		Contents:  values[4],
	}, nil
}

// EncodeFrame writes a request in NUL-delimited form.
func EncodeFrame(w io.Writer, req engine.Request) error {
	for _, v := range []string{
		strconv.Itoa(req.Index),
		strconv.Itoa(req.Fragment),
		req.Filename,
		req.Workspace,
		req.Contents,
	} {
		if _, err := io.WriteString(w, v+"\x00"); err != nil {
			return err
		}
	}
	return nil
}

// WriteFrameResponse writes `<status>\0<payload>`. A nil outcome means the
// request was aborted with err.
func WriteFrameResponse(w io.Writer, out *outcome.Outcome, err error) error {
	status, payload := StatusFailed, ""
	switch {
	case err != nil:
		payload = err.Error()
	case out.Kind == outcome.KindSuccess:
		status, payload = StatusOK, out.Payload
	case out.Kind == outcome.KindBuildFailure:
		status, payload = StatusUnprocessable, out.Payload
	default:
		payload = out.Err().Error()
	}
	_, werr := w.Write(append([]byte{status, 0}, payload...))
	return werr
}

// ReadFrameResponse parses a response written by WriteFrameResponse.
func ReadFrameResponse(r io.Reader) (byte, string, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxRequestBytes))
	if err != nil {
		return 0, "", err
	}
	if len(data) < 2 || data[1] != 0 {
		return 0, "", errors.RequestFraming("malformed response frame", nil)
	}
	return data[0], string(data[2:]), nil
}

// HTTPStatus maps an execution result to an HTTP status code: 200 on
// success, 422 on a build failure, 400 on a framing error and 500 for
// everything else.
func HTTPStatus(out *outcome.Outcome, err error) int {
	if err != nil {
		switch errors.GetCode(err) {
		case errors.ErrCodeRequestFraming, errors.ErrCodeInvalidInput:
			return http.StatusBadRequest
		}
		return http.StatusInternalServerError
	}
	switch out.Kind {
	case outcome.KindSuccess:
		return http.StatusOK
	case outcome.KindBuildFailure:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// WriteHTTP writes the text/plain response for an execution result.
func WriteHTTP(w http.ResponseWriter, out *outcome.Outcome, err error) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	var body string
	switch {
	case err != nil:
		w.Header().Set(HeaderOutcome, string(errors.GetCode(err)))
		body = err.Error()
	default:
		w.Header().Set(HeaderOutcome, string(out.Kind))
		w.Header().Set(HeaderOutcomeID, out.ID.String())
		body = out.Payload
		if out.Kind == outcome.KindExtractionFailure {
			body = out.Err().Error()
		}
	}
	w.WriteHeader(HTTPStatus(out, err))
	_, _ = io.WriteString(w, body)
}

// Result is the JSON response body sent to clients that accept
// application/json. Exactly one of Outcome and Error is set.
type Result struct {
	Outcome *outcome.Outcome `json:"outcome,omitempty"`
	Error   *ErrorBody       `json:"error,omitempty"`
}

// ErrorBody is a coded error flattened for the wire.
type ErrorBody struct {
	Code    errors.ErrorCode       `json:"code"`
	Message string                 `json:"message"`
	Cause   string                 `json:"cause,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// NewErrorBody flattens err. Uncoded errors become INTERNAL_ERROR.
func NewErrorBody(err error) *ErrorBody {
	kerr, ok := errors.As(err)
	if !ok {
		return &ErrorBody{Code: errors.ErrCodeInternal, Message: err.Error()}
	}
	body := &ErrorBody{Code: kerr.Code, Message: kerr.Message, Details: kerr.Details}
	if kerr.Cause != nil {
		body.Cause = kerr.Cause.Error()
	}
	return body
}

// Err rebuilds the coded error.
func (b *ErrorBody) Err() error {
	var kerr *errors.KernelError
	if b.Cause != "" {
		kerr = errors.Wrap(stderrors.New(b.Cause), b.Code, b.Message)
	} else {
		kerr = errors.New(b.Code, b.Message)
	}
	for k, v := range b.Details {
		kerr.WithDetail(k, v)
	}
	return kerr
}

// WantsJSON reports whether the client asked for a JSON response.
func WantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// WriteHTTPJSON writes the JSON form of an execution result with the same
// status code as WriteHTTP.
func WriteHTTPJSON(w http.ResponseWriter, out *outcome.Outcome, err error) {
	res := Result{Outcome: out}
	if err != nil {
		res = Result{Error: NewErrorBody(err)}
		w.Header().Set(HeaderOutcome, string(res.Error.Code))
	} else {
		w.Header().Set(HeaderOutcome, string(out.Kind))
		w.Header().Set(HeaderOutcomeID, out.ID.String())
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(HTTPStatus(out, err))
	_ = json.NewEncoder(w).Encode(res)
}
