// Export and mint endpoints.
//
//   - POST /projects/{id}/export            (pin the bundle to IPFS)
//   - POST /projects/{id}/export-and-mint   (pin, then mint a project NFT)
//   - GET  /nfts/my                          (the caller's minted projects)
package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/stelgent-backend/internal/services"
)

// ExportResponse identifies a pinned bundle.
type ExportResponse struct {
	Message string `json:"message" example:"Project exported to IPFS"`
	CID     string `json:"cid"`
	IPFSURL string `json:"ipfs_url"`
}

// MintRequest optionally overrides the NFT recipient; the caller's wallet is
// used when empty.
type MintRequest struct {
	StellarAddress string `json:"stellar_address"`
}

// NFTInfo describes the mint call.
type NFTInfo struct {
	ContractID string `json:"contract_id"`
	Function   string `json:"function" example:"mint"`
	To         string `json:"to"`
	ProjectID  string `json:"project_id"`
	TokenID    string `json:"token_id"`
}

// MintResponse is an export plus the minted token.
type MintResponse struct {
	Message string  `json:"message" example:"Project exported to IPFS and NFT minted on Soroban"`
	CID     string  `json:"cid"`
	IPFSURL string  `json:"ipfs_url"`
	TokenID string  `json:"token_id"`
	TxHash  string  `json:"tx_hash"`
	NFT     NFTInfo `json:"nft"`
}

// ExportProject godoc
// @ID          exportProject
// @Summary     Export a project to IPFS
// @Tags        Export
// @Produce     json
// @Security    WalletKey
// @Param       id   path      string  true  "Project ID"
// @Success     200  {object}  handlers.ExportResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Project not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Export failed"
// @Router      /projects/{id}/export [post]
func (h *Handlers) ExportProject(c *gin.Context) {
	res, err := h.export.Export(c.Request.Context(), uid(c), c.Param("id"))
	if err != nil {
		failErr(c, err, ErrCodeExportFailed)
		return
	}
	ok(c, http.StatusOK, ExportResponse{Message: "Project exported to IPFS", CID: res.CID, IPFSURL: res.IPFSURL})
}

// ExportAndMint godoc
// @ID          exportAndMint
// @Summary     Export a project and mint it
// @Description Pins the bundle, then invokes the NFT contract's mint for the recipient. One mint record is kept per project.
// @Tags        Export
// @Accept      json
// @Produce     json
// @Security    WalletKey
// @Param       id    path      string                true   "Project ID"
// @Param       body  body      handlers.MintRequest  false  "Recipient override"
// @Success     200   {object}  handlers.MintResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Invalid recipient"
// @Failure     404   {object}  handlers.ErrorResponse  "Project not found"
// @Failure     503   {object}  handlers.ErrorResponse  "Minting not configured"
// @Router      /projects/{id}/export-and-mint [post]
func (h *Handlers) ExportAndMint(c *gin.Context) {
	var req MintRequest
	// the body is optional
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	res, err := h.export.ExportAndMint(c.Request.Context(), uid(c), c.Param("id"), req.StellarAddress)
	if err != nil {
		failErr(c, err, ErrCodeMintFailed)
		return
	}
	ok(c, http.StatusOK, MintResponse{
		Message: "Project exported to IPFS and NFT minted on Soroban",
		CID:     res.CID,
		IPFSURL: res.IPFSURL,
		TokenID: res.TokenID,
		TxHash:  res.TxHash,
		NFT: NFTInfo{
			ContractID: res.ContractID,
			Function:   "mint",
			To:         res.StellarAddress,
			ProjectID:  res.ProjectID,
			TokenID:    res.TokenID,
		},
	})
}

// MyNFTs godoc
// @ID          myNFTs
// @Summary     List the caller's minted projects
// @Description Newest first.
// @Tags        Export
// @Produce     json
// @Security    WalletKey
// @Success     200  {array}   services.NFTItem
// @Router      /nfts/my [get]
func (h *Handlers) MyNFTs(c *gin.Context) {
	items, err := h.export.MyNFTs(c.Request.Context(), uid(c))
	if err != nil {
		failErr(c, err, ErrCodeListFailed)
		return
	}
	if items == nil {
		items = []services.NFTItem{}
	}
	ok(c, http.StatusOK, items)
}
