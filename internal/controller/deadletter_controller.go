package controller

import (
	"net/http"
	"strconv"

	"github.com/abcretailers/retailcore/internal/domain/event"
	"github.com/abcretailers/retailcore/internal/queue"
)

var knownQueues = map[string]struct{}{
	event.QueueOrderNotifications: {},
	event.QueueStockUpdates:       {},
	event.QueueProductImages:      {},
}

// DeadLetterController surfaces retained dead letters to operators.
type DeadLetterController struct {
	reader queue.DeadLetterReader
}

func NewDeadLetterController(reader queue.DeadLetterReader) *DeadLetterController {
	return &DeadLetterController{reader: reader}
}

// List handles GET /api/v1/deadletters?queue=<name>&limit=<n>.
// Without a queue filter, all known queues are listed.
func (c *DeadLetterController) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "limit must be between 1 and 1000", Code: "validation_error"})
			return
		}
		limit = n
	}

	queues := make([]string, 0, len(knownQueues))
	if q := r.URL.Query().Get("queue"); q != "" {
		if _, ok := knownQueues[q]; !ok {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "unknown queue " + q, Code: "validation_error"})
			return
		}
		queues = append(queues, q)
	} else {
		for q := range knownQueues {
			queues = append(queues, q)
		}
	}

	letters := make([]queue.DeadLetter, 0)
	for _, q := range queues {
		dls, err := c.reader.DeadLetters(r.Context(), q, limit)
		if err != nil {
			writeError(w, err)
			return
		}
		letters = append(letters, dls...)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"dead_letters": toDeadLetterResponses(letters),
	})
}
