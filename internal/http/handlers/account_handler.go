// Account HTTP handlers.
//
//   - POST /auth/login              (admin login)
//   - POST /employee/login          (employee login)
//   - POST /login                   (unified login, admin first)
//   - GET  /admin/me, /employee/me  (current account)
//   - GET  /admin/list              (admins, any role)
//   - POST /employees, GET /employees (admin only)
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/zalagh/plancher-backend/internal/domain"
	"github.com/zalagh/plancher-backend/internal/http/middleware"
	"github.com/zalagh/plancher-backend/internal/services"
)

//
// DTOs
//

// LoginRequest is the payload of every login endpoint.
type LoginRequest struct {
	Email    string `json:"email"    binding:"required" example:"khalid@gmail.com"`
	Password string `json:"password" binding:"required" example:"admin123"`
}

// AdminLoginResponse is returned by POST /auth/login.
type AdminLoginResponse struct {
	Token string            `json:"token"`
	Admin services.UserInfo `json:"admin"`
}

// EmployeeLoginResponse is returned by POST /employee/login.
type EmployeeLoginResponse struct {
	Token    string            `json:"token"`
	Employee services.UserInfo `json:"employee"`
}

// LoginResponse is returned by the unified POST /login.
type LoginResponse struct {
	Token string            `json:"token"`
	Role  domain.Role       `json:"role" example:"admin"`
	User  services.UserInfo `json:"user"`
}

// CreateEmployeeRequest is the payload of POST /employees. Email and
// password are optional; an employee without a password cannot log in.
type CreateEmployeeRequest struct {
	Nom      string `json:"nom"      binding:"required" example:"Bennani"`
	Prenom   string `json:"prenom"   binding:"required" example:"Sara"`
	Secteur  string `json:"secteur"  binding:"required,secteur" enums:"finance,chantier,production"`
	Email    string `json:"email"    binding:"omitempty,email" example:"sara@zalagh.ma"`
	Password string `json:"password" example:"changeme"`
}

func (h *Handlers) bindLogin(c *gin.Context) (LoginRequest, bool) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "email and password required")
		return req, false
	}
	return req, true
}

// AdminLogin godoc
// @ID          adminLogin
// @Summary     Admin login
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.LoginRequest  true  "Credentials"
// @Success     200   {object}  handlers.AdminLoginResponse
// @Failure     400   {object}  handlers.ErrorResponse "Missing fields"
// @Failure     401   {object}  handlers.ErrorResponse "Invalid credentials"
// @Router      /auth/login [post]
func (h *Handlers) AdminLogin(c *gin.Context) {
	req, valid := h.bindLogin(c)
	if !valid {
		return
	}
	s, err := h.authSvc.LoginAdmin(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, AdminLoginResponse{Token: s.Token, Admin: s.User})
}

// EmployeeLogin godoc
// @ID          employeeLogin
// @Summary     Employee login
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.LoginRequest  true  "Credentials"
// @Success     200   {object}  handlers.EmployeeLoginResponse
// @Failure     400   {object}  handlers.ErrorResponse "Missing fields"
// @Failure     401   {object}  handlers.ErrorResponse "Invalid credentials"
// @Router      /employee/login [post]
func (h *Handlers) EmployeeLogin(c *gin.Context) {
	req, valid := h.bindLogin(c)
	if !valid {
		return
	}
	s, err := h.authSvc.LoginEmployee(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, EmployeeLoginResponse{Token: s.Token, Employee: s.User})
}

// Login godoc
// @ID          login
// @Summary     Unified login
// @Description Tries the admin accounts first, then employees.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.LoginRequest  true  "Credentials"
// @Success     200   {object}  handlers.LoginResponse
// @Failure     400   {object}  handlers.ErrorResponse "Missing fields"
// @Failure     401   {object}  handlers.ErrorResponse "Invalid credentials"
// @Router      /login [post]
func (h *Handlers) Login(c *gin.Context) {
	req, valid := h.bindLogin(c)
	if !valid {
		return
	}
	s, err := h.authSvc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, LoginResponse{Token: s.Token, Role: s.Role, User: s.User})
}

// AdminMe godoc
// @ID          adminMe
// @Summary     Current admin
// @Tags        Auth
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  domain.Admin
// @Failure     401  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse "Account deleted"
// @Router      /admin/me [get]
func (h *Handlers) AdminMe(c *gin.Context) {
	id, found := identity(c)
	if !found {
		return
	}
	a, err := h.authSvc.Admin(c.Request.Context(), id.AdminID)
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, a)
}

// EmployeeMe godoc
// @ID          employeeMe
// @Summary     Current employee
// @Tags        Auth
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  domain.Employee
// @Failure     401  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse "Account deleted"
// @Router      /employee/me [get]
func (h *Handlers) EmployeeMe(c *gin.Context) {
	id, found := identity(c)
	if !found {
		return
	}
	e, err := h.authSvc.Employee(c.Request.Context(), id.EmployeeID)
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, e)
}

// ListAdmins godoc
// @ID          listAdmins
// @Summary     List admins
// @Description Used by both portals to pick a message recipient.
// @Tags        Auth
// @Produce     json
// @Security    BearerAuth
// @Success     200  {array}   domain.Admin
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /admin/list [get]
func (h *Handlers) ListAdmins(c *gin.Context) {
	list, err := h.authSvc.Admins(c.Request.Context())
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, list)
}

// CreateEmployee godoc
// @ID          createEmployee
// @Summary     Create an employee
// @Tags        Employees
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       Idempotency-Key  header  string  false  "Idempotency key for safe retries"
// @Param       body             body    handlers.CreateEmployeeRequest  true  "Employee"
// @Success     201  {object}  domain.Employee
// @Success     200  {object}  domain.Employee "Replayed"
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse "Email already in use"
// @Router      /employees [post]
func (h *Handlers) CreateEmployee(c *gin.Context) {
	ctx := c.Request.Context()
	id, found := identity(c)
	if !found {
		return
	}

	if rid, replay := middleware.ReplayedResource(c); replay {
		if n, err := strconv.ParseUint(rid, 10, 32); err == nil {
			if prev, err := h.authSvc.Employee(ctx, uint(n)); err == nil {
				middleware.MarkReplayed(c)
				ok(c, http.StatusOK, prev)
				return
			}
		}
	}

	var req CreateEmployeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err, msgInvalidBody)
		return
	}
	e, err := h.empSvc.Create(ctx, id.AdminID, services.NewEmployee{
		Nom:      req.Nom,
		Prenom:   req.Prenom,
		Secteur:  req.Secteur,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	middleware.RememberResource(c, strconv.FormatUint(uint64(e.ID), 10), http.StatusCreated)
	ok(c, http.StatusCreated, e)
}

// ListEmployees godoc
// @ID          listEmployees
// @Summary     List employees
// @Tags        Employees
// @Produce     json
// @Security    BearerAuth
// @Success     200  {array}   domain.Employee
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /employees [get]
func (h *Handlers) ListEmployees(c *gin.Context) {
	list, err := h.empSvc.List(c.Request.Context())
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, list)
}
