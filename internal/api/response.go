package api

import (
	"math"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/PolloDK/FK01-Encuestas/internal/frame"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{Error: APIError{Message: msg, Code: code}})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// frameRows turns a frame into JSON objects keyed by column. Missing values
// become null.
func frameRows(f *frame.Frame, rows []int) []map[string]any {
	cols := f.Columns()
	out := make([]map[string]any, 0, len(rows))
	for _, i := range rows {
		row := make(map[string]any, len(cols)+1)
		row["date"] = f.Date(i).Format(frame.DateLayout)
		for _, c := range cols {
			v := f.Get(c, i)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				row[c] = nil
			} else {
				row[c] = v
			}
		}
		out = append(out, row)
	}
	return out
}
