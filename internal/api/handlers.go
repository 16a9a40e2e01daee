package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ciphergraph/fhevm-dfg/internal/depgraph"
)

func (h *APIHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *APIHandler) handleGetDFG(c *gin.Context) {
	chainID, ok := parseChainID(c)
	if !ok {
		return
	}
	txHash := c.Param("txHash")

	result, found, err := h.db.LoadBuildResult(c.Request.Context(), chainID, txHash)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "tx not found"})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *APIHandler) handleGetDeps(c *gin.Context) {
	chainID, ok := parseChainID(c)
	if !ok {
		return
	}
	txHash := c.Param("txHash")

	rec, found, err := h.db.DependencyRecord(c.Request.Context(), chainID, txHash)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "dependency record not found"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *APIHandler) handleWindowDepth(c *gin.Context) {
	chainID, ok := parseChainID(c)
	if !ok {
		return
	}
	txHash := c.Param("txHash")

	lookback := uint64(256)
	if raw := c.Query("lookback"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid lookback"})
			return
		}
		lookback = n
	}

	depth, err := depgraph.WindowedDepth(c.Request.Context(), h.producers, h.db, chainID, txHash, lookback)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"chainId": chainID, "txHash": txHash, "lookback": lookback, "windowDepth": depth})
}

func (h *APIHandler) handleOpMixRollup(c *gin.Context) {
	chainID, ok := parseChainID(c)
	if !ok {
		return
	}
	rollup, found, err := h.db.LoadOpMixRollup(c.Request.Context(), chainID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "no rollup for chain"})
		return
	}
	c.JSON(http.StatusOK, rollup)
}

func (h *APIHandler) handleDependencyRollup(c *gin.Context) {
	chainID, ok := parseChainID(c)
	if !ok {
		return
	}
	rollup, found, err := h.db.LoadDependencyRollup(c.Request.Context(), chainID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "no rollup for chain"})
		return
	}
	c.JSON(http.StatusOK, rollup)
}

func (h *APIHandler) handleOpBuckets(c *gin.Context) {
	chainID, ok := parseChainID(c)
	if !ok {
		return
	}
	bucketSeconds := int64(300)
	if raw := c.Query("bucketSeconds"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid bucketSeconds"})
			return
		}
		bucketSeconds = n
	}

	buckets, err := h.db.OpBuckets(c.Request.Context(), chainID, bucketSeconds)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"chainId": chainID, "bucketSeconds": bucketSeconds, "buckets": buckets})
}

func (h *APIHandler) handleCycles(c *gin.Context) {
	chainID, ok := parseChainID(c)
	if !ok {
		return
	}
	blockNumber, err := strconv.ParseUint(c.Param("blockNumber"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid blockNumber"})
		return
	}

	report, found, err := h.db.CycleReport(c.Request.Context(), chainID, blockNumber)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "no cycle report for block"})
		return
	}
	c.JSON(http.StatusOK, report)
}

// handleSignatureTxs looks up every tx sharing a DFG signature hash — the
// recurring-computation-pattern lookup. chainId is an optional query
// parameter; without it, the lookup spans every ingested chain.
func (h *APIHandler) handleSignatureTxs(c *gin.Context) {
	hash := c.Param("hash")

	var chainID *uint64
	if raw := c.Query("chainId"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chainId"})
			return
		}
		chainID = &id
	}

	txs, err := h.db.TxsBySignatureAnyChain(c.Request.Context(), chainID, hash)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"signatureHash": hash, "txs": txs})
}
