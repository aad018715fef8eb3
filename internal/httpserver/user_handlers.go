package httpserver

import (
	"net/http"

	"github.com/parleyhq/parley/internal/service"
)

// @Summary      List known users
// @Description  Every id seen by the service, decorated from the directory
// @Tags         users
// @Security     BearerAuth
// @Produce      json
// @Param        limit   query int false "page size"
// @Param        offset  query int false "page offset"
// @Success      200  {array}  service.UserResponse
// @Router       /users [get]
func handleListUsers(users *service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := users.List(r.Context(), queryInt(r, "limit", 0), queryInt(r, "offset", 0))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}
