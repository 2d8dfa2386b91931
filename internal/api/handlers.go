package api

import (
	"net/http"

	"kline-service/internal/model"
	"kline-service/internal/query"

	"github.com/gin-gonic/gin"
)

// Handler serves candle and indicator requests.
type Handler struct {
	query *query.Service
}

func NewHandler(q *query.Service) *Handler {
	return &Handler{query: q}
}

// params validates the resolution path parameter and the limit query value.
func params(c *gin.Context) (model.Resolution, int, bool) {
	res, err := model.ParseResolution(c.Param("resolution"))
	if err != nil {
		writeError(c, err, "")
		return "", 0, false
	}
	limit, err := query.ParseLimit(c.Query("limit"))
	if err != nil {
		writeError(c, err, "")
		return "", 0, false
	}
	return res, limit, true
}

func (h *Handler) GetKlines(c *gin.Context) {
	res, limit, ok := params(c)
	if !ok {
		return
	}
	candles, err := h.query.Candles(c.Request.Context(), res, limit)
	if err != nil {
		writeError(c, err, "Error fetching klines")
		return
	}
	out := make([]CandleOut, len(candles))
	for i, k := range candles {
		out[i] = newCandleOut(k)
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) GetMACD(c *gin.Context) {
	res, limit, ok := params(c)
	if !ok {
		return
	}
	rows, err := h.query.MACD(c.Request.Context(), res, limit)
	if err != nil {
		writeError(c, err, "Error calculating MACD")
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (h *Handler) GetRSI(c *gin.Context) {
	res, limit, ok := params(c)
	if !ok {
		return
	}
	rows, err := h.query.RSI(c.Request.Context(), res, limit)
	if err != nil {
		writeError(c, err, "Error calculating RSI")
		return
	}
	c.JSON(http.StatusOK, rows)
}

// Chart serves the chart page placeholder.
func (h *Handler) Chart(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", chartPage)
}

var chartPage = []byte(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>Klines</title></head>
<body>
<h1>Klines</h1>
<p>Data endpoints:</p>
<ul>
<li><a href="/kline/1m?limit=100">/kline/{1m|5m|1h}</a></li>
<li><a href="/indicators/macd/1m?limit=100">/indicators/macd/{1m|5m|1h}</a></li>
<li><a href="/indicators/rsi/1m?limit=100">/indicators/rsi/{1m|5m|1h}</a></li>
</ul>
</body>
</html>
`)
