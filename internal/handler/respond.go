package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dukerupert/packwise/internal/auth"
	"github.com/dukerupert/packwise/internal/model"
	"github.com/dukerupert/packwise/internal/packing"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads a JSON body into dst and validates its struct tags.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return errors.New("invalid JSON")
	}
	if err := validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Field(), rule))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

// writeError maps service errors to status codes. Unknown errors are logged
// and reported without detail.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var status int
	switch {
	case errors.Is(err, packing.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, packing.ErrInvalid):
		status = http.StatusBadRequest
	case errors.Is(err, packing.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, packing.ErrConstraint):
		status = http.StatusConflict
	case errors.Is(err, packing.ErrCredentials):
		status = http.StatusUnauthorized
	default:
		logger.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func parseIDParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}

// pathIDs parses each named path value, writing 400 on the first bad one.
func pathIDs(w http.ResponseWriter, r *http.Request, names ...string) ([]int64, bool) {
	ids := make([]int64, len(names))
	for i, name := range names {
		id, err := parseIDParam(r, name)
		if err != nil {
			badRequest(w, err.Error())
			return nil, false
		}
		ids[i] = id
	}
	return ids, true
}

func queryInt64(r *http.Request, name string) (*int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s", name)
	}
	return &v, nil
}

// scope returns the caller and the family a collection request targets.
// System admins may name another family with ?family_id.
func scope(r *http.Request) (auth.AuthContext, int64, error) {
	ac, _ := auth.FromContext(r.Context())
	if !ac.IsSystemAdmin() {
		return ac, ac.FamilyID, nil
	}
	fid, err := queryInt64(r, "family_id")
	if err != nil {
		return ac, 0, err
	}
	if fid != nil {
		return ac, *fid, nil
	}
	return ac, ac.FamilyID, nil
}

func caller(r *http.Request) auth.AuthContext {
	ac, _ := auth.FromContext(r.Context())
	return ac
}

type reconciliation struct {
	Mode      packing.Mode          `json:"mode"`
	Succeeded []int64               `json:"succeeded"`
	Failed    []int64               `json:"failed"`
	Jobs      []*model.ReconcileJob `json:"jobs,omitempty"`
	Error     string                `json:"error,omitempty"`
}

func reconciliationOf(out *packing.Outcome) reconciliation {
	rec := reconciliation{
		Succeeded: out.SucceededListIDs(),
		Failed:    out.FailedListIDs(),
	}
	if out != nil {
		rec.Mode = out.Mode
		rec.Jobs = out.Jobs
		if len(out.Unreached()) > 0 {
			rec.Error = "subscribed lists could not be loaded"
		} else if err := out.Err(); err != nil {
			rec.Error = err.Error()
		}
	}
	return rec
}

// writeOutcome responds to a template-affecting mutation. Queued
// propagation answers 202 regardless of status. A propagation that could
// not find its subscribed lists answers 500; the mutation itself is
// committed and a resync repairs the lists.
func writeOutcome(w http.ResponseWriter, status int, body map[string]any, out *packing.Outcome) {
	if body == nil {
		body = map[string]any{}
	}
	body["reconciliation"] = reconciliationOf(out)
	switch {
	case out != nil && len(out.Jobs) > 0:
		status = http.StatusAccepted
	case len(out.Unreached()) > 0:
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, body)
}
