package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// reply is the body of every response: {"success": bool, "message"?: string, <key>: payload}.
type reply map[string]any

func ok(fields reply) reply {
	out := reply{"success": true}
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func failure(message string) reply {
	return reply{"success": false, "message": message}
}

func writeReply(writer http.ResponseWriter, status int, body reply) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	if err := json.NewEncoder(writer).Encode(body); err != nil {
		slog.Error("failed to write", "err", err)
	}
}

// decodeBody reads a json object. An empty body decodes to an empty map.
func decodeBody(request *http.Request) (map[string]any, error) {
	out := make(map[string]any)
	if request.Body == nil || request.ContentLength == 0 {
		return out, nil
	}
	if err := json.NewDecoder(request.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}
