package mutations

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/angelmondragon/posync/pkg/backend"
	"github.com/angelmondragon/posync/pkg/db/models"
	"github.com/angelmondragon/posync/pkg/enums"
)

type routeKey struct {
	kind   enums.EntityKind
	action enums.MutationAction
}

type route struct {
	method string
	// collection is the resource root; item routes append the escaped entity id.
	collection string
	item       bool
	body       bool
}

var routeTable = map[routeKey]route{
	{enums.EntityKindCustomer, enums.MutationActionCreate}: {method: http.MethodPost, collection: "/customers", body: true},
	{enums.EntityKindCustomer, enums.MutationActionUpdate}: {method: http.MethodPut, collection: "/customers", item: true, body: true},
	{enums.EntityKindCustomer, enums.MutationActionDelete}: {method: http.MethodDelete, collection: "/customers", item: true},
}

// Routable reports whether kind and action have a backend route.
func Routable(kind enums.EntityKind, action enums.MutationAction) bool {
	_, ok := routeTable[routeKey{kind, action}]
	return ok
}

// resolve maps a queued mutation to its backend request. ok is false when the
// item cannot be routed by this build and must be left in the queue.
func resolve(item models.MutationQueueItem) (backend.Request, bool) {
	rt, ok := routeTable[routeKey{item.EntityKind, item.Action}]
	if !ok {
		return backend.Request{}, false
	}

	path := rt.collection
	if rt.item {
		if item.EntityID == nil || strings.TrimSpace(*item.EntityID) == "" {
			return backend.Request{}, false
		}
		path += "/" + url.PathEscape(strings.TrimSpace(*item.EntityID))
	}

	req := backend.Request{
		Method:         rt.method,
		Path:           path,
		IdempotencyKey: item.ID.String(),
	}
	if rt.body && !item.Payload.IsNull() {
		req.Body = json.RawMessage(item.Payload)
	}
	return req, true
}
