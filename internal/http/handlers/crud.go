package handlers

import (
	"net/http"

	"github.com/pribylovaa/go-taskboard/internal/proxy"
)

// CRUDHandlers - стандартный набор обработчиков одного ресурса бэкенда.
type CRUDHandlers struct {
	List   http.HandlerFunc
	Get    http.HandlerFunc
	Create http.HandlerFunc
	Update http.HandlerFunc
	Patch  http.HandlerFunc
	Delete http.HandlerFunc
}

// CRUD строит обработчики для backendPath (коллекция) и backendPath/{id}
// (элемент). Все маршруты требуют аутентификации.
func (h *Handlers) CRUD(resource, backendPath string) CRUDHandlers {
	item := backendPath + "/{id}"

	route := func(action, msg string, pc proxy.Config) http.HandlerFunc {
		return h.Route(RouteConfig{
			RequireAuth:         true,
			LogContext:          resource + "." + action,
			DefaultErrorMessage: msg,
		}, pc)
	}

	return CRUDHandlers{
		List:   route("list", "Failed to fetch "+resource, proxy.Config{Method: http.MethodGet, URL: backendPath}),
		Get:    route("get", "Failed to fetch "+resource, proxy.Config{Method: http.MethodGet, URL: item}),
		Create: route("create", "Failed to create "+resource, proxy.Config{Method: http.MethodPost, URL: backendPath, IncludeBody: true}),
		Update: route("update", "Failed to update "+resource, proxy.Config{Method: http.MethodPut, URL: item, IncludeBody: true}),
		Patch:  route("patch", "Failed to update "+resource, proxy.Config{Method: http.MethodPatch, URL: item, IncludeBody: true}),
		Delete: route("delete", "Failed to delete "+resource, proxy.Config{Method: http.MethodDelete, URL: item}),
	}
}
