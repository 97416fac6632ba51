// Deployment endpoints.
//
//   - POST   /projects/{id}/deploy             (build and start a container)
//   - DELETE /projects/{id}/deploy             (stop it)
//   - GET    /projects/{id}/container-status   (live state)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// DeployResponse describes a started deployment.
type DeployResponse struct {
	Message      string `json:"message" example:"Project deployed successfully"`
	ContainerURL string `json:"container_url" example:"http://localhost:3001"`
	Port         int    `json:"port" example:"3001"`
	ContainerID  string `json:"container_id"`
}

// ContainerStatusResponse is the live state of a deployment. URL and Port
// are only present while deployed.
type ContainerStatusResponse struct {
	Deployed bool   `json:"deployed"`
	Status   string `json:"status" example:"running"`
	URL      string `json:"url,omitempty"`
	Port     int    `json:"port,omitempty"`
}

// DeployProject godoc
// @ID          deployProject
// @Summary     Deploy a project
// @Description Builds an image from the project's files and runs it on a free host port. A running deployment is replaced.
// @Tags        Deploy
// @Produce     json
// @Security    WalletKey
// @Param       id   path      string  true  "Project ID"
// @Success     200  {object}  handlers.DeployResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Project has no files"
// @Failure     404  {object}  handlers.ErrorResponse  "Project not found"
// @Failure     503  {object}  handlers.ErrorResponse  "Container runtime unavailable"
// @Router      /projects/{id}/deploy [post]
func (h *Handlers) DeployProject(c *gin.Context) {
	res, err := h.deploy.Deploy(c.Request.Context(), uid(c), c.Param("id"))
	if err != nil {
		failErr(c, err, ErrCodeDeployFailed)
		return
	}
	ok(c, http.StatusOK, DeployResponse{
		Message:      "Project deployed successfully",
		ContainerURL: res.URL,
		Port:         res.Port,
		ContainerID:  res.ContainerID,
	})
}

// StopDeployment godoc
// @ID          stopDeployment
// @Summary     Stop a deployment
// @Tags        Deploy
// @Produce     json
// @Security    WalletKey
// @Param       id   path      string  true  "Project ID"
// @Success     200  {object}  handlers.MessageResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Project is not deployed"
// @Failure     404  {object}  handlers.ErrorResponse  "Project not found"
// @Router      /projects/{id}/deploy [delete]
func (h *Handlers) StopDeployment(c *gin.Context) {
	if err := h.deploy.Stop(c.Request.Context(), uid(c), c.Param("id")); err != nil {
		failErr(c, err, ErrCodeDeployFailed)
		return
	}
	okMessage(c, "Container stopped successfully")
}

// ContainerStatus godoc
// @ID          containerStatus
// @Summary     Deployment status
// @Description Reports the container state. A container that disappeared is reported as container_not_found and forgotten.
// @Tags        Deploy
// @Produce     json
// @Security    WalletKey
// @Param       id   path      string  true  "Project ID"
// @Success     200  {object}  handlers.ContainerStatusResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Project not found"
// @Router      /projects/{id}/container-status [get]
func (h *Handlers) ContainerStatus(c *gin.Context) {
	st, err := h.deploy.Status(c.Request.Context(), uid(c), c.Param("id"))
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	resp := ContainerStatusResponse{Deployed: st.Deployed, Status: st.Status}
	if st.Deployed {
		resp.URL, resp.Port = st.URL, st.Port
	}
	ok(c, http.StatusOK, resp)
}
