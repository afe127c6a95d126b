package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/duynguyendang/vultester/pkg/common/errors"
	"github.com/duynguyendang/vultester/pkg/engine"
	"github.com/gin-gonic/gin"
)

const defaultRunLimit = 20

type analyzeRequest struct {
	Facts  []string `json:"facts"`
	Method string   `json:"method"`
}

// method defaults to forward chaining when absent.
func (r analyzeRequest) method() (engine.Method, error) {
	if strings.TrimSpace(r.Method) == "" {
		return engine.Forward, nil
	}
	return engine.ParseMethod(r.Method)
}

// handleAnalyze runs one evaluation and returns the report.
func (s *Server) handleAnalyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleError(c, errors.NewAppError(http.StatusBadRequest, "Invalid request body", err))
		return
	}
	method, err := req.method()
	if err != nil {
		handleError(c, err)
		return
	}

	res, err := s.svc.Evaluate(c.Request.Context(), req.Facts, method)
	if err != nil {
		handleError(c, err)
		return
	}

	if c.Query("graph") == "true" {
		c.JSON(http.StatusOK, gin.H{"result": res, "graph": s.svc.TraceGraph(res)})
		return
	}
	c.JSON(http.StatusOK, res)
}

// handleRules lists the knowledge base, optionally one category.
func (s *Server) handleRules(c *gin.Context) {
	list := s.svc.ListRules()
	if category := c.Query("category"); category != "" {
		list.Rules = s.svc.RulesByCategory(category)
		list.Count = len(list.Rules)
	}
	c.JSON(http.StatusOK, list)
}

// handleRule returns one rule with its remediation.
func (s *Server) handleRule(c *gin.Context) {
	detail, err := s.svc.GetRule(c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// handleRuns lists stored runs, newest first. ?limit= defaults to 20.
func (s *Server) handleRuns(c *gin.Context) {
	limit := defaultRunLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	runs, err := s.svc.Runs(limit)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
}

// handleRun returns one stored run with its full report.
func (s *Server) handleRun(c *gin.Context) {
	rec, err := s.svc.Run(c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// handleFacts returns the selectable fact catalog.
func (s *Server) handleFacts(c *gin.Context) {
	c.JSON(http.StatusOK, s.svc.Facts())
}

// handleGraph returns the rule graph in D3 format.
func (s *Server) handleGraph(c *gin.Context) {
	c.JSON(http.StatusOK, s.svc.RuleGraph())
}

// handlePath returns the shortest derivation from the given facts to a goal.
func (s *Server) handlePath(c *gin.Context) {
	var req struct {
		Facts []string `json:"facts"`
		Goal  string   `json:"goal"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		handleError(c, errors.NewAppError(http.StatusBadRequest, "Invalid request body", err))
		return
	}
	if len(req.Facts) == 0 {
		handleError(c, errors.NewAppError(http.StatusBadRequest, "Missing facts", nil))
		return
	}

	graph, err := s.svc.DerivationPath(req.Facts, req.Goal)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, graph)
}

// handleExplain evaluates and narrates the report.
func (s *Server) handleExplain(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleError(c, errors.NewAppError(http.StatusBadRequest, "Invalid request body", err))
		return
	}
	method, err := req.method()
	if err != nil {
		handleError(c, err)
		return
	}

	res, text, err := s.svc.Explain(c.Request.Context(), req.Facts, method)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": res, "explanation": text})
}

func handleError(c *gin.Context, err error) {
	appErr := errors.MapError(err)
	body := gin.H{"error": appErr.Message}
	if details := appErr.Details(); details != "" {
		body["details"] = details
	}
	c.JSON(appErr.Code, body)
}
