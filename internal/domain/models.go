// Package domain defines the persistence models for admins, employees,
// customer requests (demandes), notifications, and direct messages. These
// types are mapped with GORM and form the core data layer of the application.
// Table and column names match the historical schema so existing databases
// keep working.
package domain

import (
	"strings"
	"time"
)

// Role distinguishes the two authenticated populations.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleEmployee Role = "employee"
)

// Sector is the fixed employee category used to route notifications.
type Sector string

const (
	SectorFinance    Sector = "finance"
	SectorChantier   Sector = "chantier"
	SectorProduction Sector = "production"
)

// Sectors lists every valid sector in display order.
var Sectors = []Sector{SectorFinance, SectorChantier, SectorProduction}

// ParseSector normalizes s and reports whether it names a known sector.
// "site" is accepted as the English alias of chantier.
func ParseSector(s string) (Sector, bool) {
	v := Sector(strings.ToLower(strings.TrimSpace(s)))
	if v == "site" {
		return SectorChantier, true
	}
	for _, known := range Sectors {
		if v == known {
			return v, true
		}
	}
	return "", false
}

// Status is the lifecycle state of a demande. The only transition is
// StatusInProgress → StatusDelivered, made when a signed PDF is stored.
type Status string

const (
	StatusInProgress Status = "encours"
	StatusDelivered  Status = "livré"
)

// Admin is a back-office user. Admins are seeded, never created through the API.
type Admin struct {
	ID           string    `json:"id"         gorm:"type:char(36);primaryKey"`
	Nom          string    `json:"nom"        gorm:"type:varchar(100);not null;default:''"`
	Prenom       string    `json:"prenom"     gorm:"type:varchar(100);not null;default:''"`
	Email        string    `json:"email"      gorm:"type:varchar(255);not null;uniqueIndex"`
	PasswordHash string    `json:"-"          gorm:"column:mdp_hash;type:varchar(255);not null;default:''"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName returns the database table name for Admin.
func (Admin) TableName() string { return "admin" }

// Employee belongs to one sector and is created by an admin. Email and
// password are optional; an employee without a password cannot log in.
type Employee struct {
	ID           uint      `json:"id"         gorm:"primaryKey;autoIncrement"`
	Nom          string    `json:"nom"        gorm:"type:varchar(100);not null"`
	Prenom       string    `json:"prenom"     gorm:"type:varchar(100);not null"`
	Secteur      Sector    `json:"secteur"    gorm:"type:varchar(20);not null;index;check:secteur IN ('finance','chantier','production')"`
	Email        *string   `json:"email"      gorm:"type:varchar(255);uniqueIndex"`
	PasswordHash *string   `json:"-"          gorm:"column:mdp_hash;type:varchar(255)"`
	AdminRef     *string   `json:"adminref"   gorm:"column:adminref;type:char(36)"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName returns the database table name for Employee.
func (Employee) TableName() string { return "employee" }

// Demande is a customer's concrete-supply project request.
//
// Fields:
//   - ID: serial primary key, exposed as "iddemande".
//   - PlanJPG: public path of the attached plan image (/uploads/… or /planjpg/…).
//   - PDFPath: public path of the generated quote, set by quote generation.
//   - PDFSignePath: public path of the signed upload; set together with
//     Statut = StatusDelivered.
type Demande struct {
	ID           uint      `json:"iddemande"      gorm:"column:iddemande;primaryKey;autoIncrement"`
	Nom          string    `json:"nom"            gorm:"type:varchar(100);not null"`
	Prenom       string    `json:"prenom"         gorm:"type:varchar(100);not null"`
	Telephone    string    `json:"telephone"      gorm:"type:varchar(40);not null;default:''"`
	TypeProjet   string    `json:"type_projet"    gorm:"column:type_projet;type:varchar(255);not null"`
	PlanJPG      *string   `json:"plan_jpg"       gorm:"column:plan_jpg;type:varchar(512)"`
	Prix         float64   `json:"prix"           gorm:"not null"`
	Statut       Status    `json:"statut"         gorm:"type:varchar(16);not null;default:'encours';check:statut IN ('encours','livré')"`
	PDFPath      *string   `json:"pdf_path"       gorm:"column:pdf_path;type:varchar(512)"`
	PDFSignePath *string   `json:"pdf_signe_path" gorm:"column:pdf_signe_path;type:varchar(512)"`
	CreatedAt    time.Time `json:"created_at"     gorm:"index"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for Demande.
func (Demande) TableName() string { return "demande" }

// Notification is one admin broadcast delivered to exactly one employee.
// ReadAt and TakenAt are set by the owning employee.
type Notification struct {
	ID             string     `json:"id"               gorm:"type:char(36);primaryKey"`
	EmployeeID     uint       `json:"employee_id"      gorm:"not null;index:idx_notif_employee,priority:1"`
	Title          string     `json:"title"            gorm:"type:varchar(255);not null"`
	BodyHTML       string     `json:"body_html"        gorm:"column:body_html;type:text;not null"`
	CreatedByAdmin *string    `json:"created_by_admin" gorm:"column:created_by_admin;type:char(36)"`
	CreatedAt      time.Time  `json:"created_at"       gorm:"index:idx_notif_employee,priority:2"`
	ReadAt         *time.Time `json:"read_at"`
	TakenAt        *time.Time `json:"taken_at"`

	Employee Employee `json:"-" gorm:"foreignKey:EmployeeID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Notification.
func (Notification) TableName() string { return "notification" }

// NotificationReply is an append-only thread entry under a notification.
// Exactly one of SenderEmployeeID and SenderAdminID is set, matching SenderType.
type NotificationReply struct {
	ID               string    `json:"id"                 gorm:"type:char(36);primaryKey"`
	NotificationID   string    `json:"notification_id"    gorm:"type:char(36);not null;index:idx_reply_notif,priority:1"`
	SenderType       Role      `json:"sender_type"        gorm:"type:varchar(16);not null;check:sender_type IN ('employee','admin')"`
	SenderEmployeeID *uint     `json:"sender_employee_id"`
	SenderAdminID    *string   `json:"sender_admin_id"    gorm:"type:char(36)"`
	Body             string    `json:"body"               gorm:"type:text;not null"`
	CreatedAt        time.Time `json:"created_at"         gorm:"index:idx_reply_notif,priority:2"`

	Notification Notification `json:"-" gorm:"foreignKey:NotificationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for NotificationReply.
func (NotificationReply) TableName() string { return "notification_reply" }

// Message is a direct message between two parties. There is no conversation
// row; a channel is the set of messages between two (role, id) pairs.
type Message struct {
	ID            string    `json:"id"             gorm:"type:char(36);primaryKey"`
	SenderID      string    `json:"sender_id"      gorm:"type:varchar(64);not null;index:idx_msg_sender"`
	SenderType    Role      `json:"sender_type"    gorm:"type:varchar(16);not null"`
	RecipientID   string    `json:"recipient_id"   gorm:"type:varchar(64);not null;index:idx_msg_recipient"`
	RecipientType Role      `json:"recipient_type" gorm:"type:varchar(16);not null"`
	Content       string    `json:"content"        gorm:"type:text;not null"`
	CreatedAt     time.Time `json:"created_at"     gorm:"index"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "message" }
