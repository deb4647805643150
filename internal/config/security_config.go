// config/security_config.go
package config

type SecurityLevel int

const (
	SecurityPublic SecurityLevel = iota // No authentication
	SecurityMember                      // Access token required
	SecurityAdmin                       // Access token with admin role required
)

func (l SecurityLevel) String() string {
	switch l {
	case SecurityPublic:
		return "public"
	case SecurityMember:
		return "member"
	default:
		return "admin"
	}
}

// EndpointSecurityConfig maps route names to their required security level
var EndpointSecurityConfig = map[string]SecurityLevel{
	// Auth - Public
	"auth.signup":      SecurityPublic,
	"auth.login":       SecurityPublic,
	"auth.admin.login": SecurityPublic,

	// Auth - Member
	"auth.logout": SecurityMember,

	// Registration - Member
	"registration.get":     SecurityMember,
	"registration.submit":  SecurityMember,
	"registration.discard": SecurityMember,
	"registration.proof":   SecurityMember,
	"registration.events":  SecurityMember,
	"registration.dismiss": SecurityMember,

	// Admin
	"admin.requests.list":    SecurityAdmin,
	"admin.requests.approve": SecurityAdmin,
	"admin.requests.deny":    SecurityAdmin,
	"admin.members.list":     SecurityAdmin,
	"admin.members.create":   SecurityAdmin,
	"admin.members.clear":    SecurityAdmin,
	"admin.members.update":   SecurityAdmin,
	"admin.members.delete":   SecurityAdmin,
	"admin.members.export":   SecurityAdmin,
	"admin.members.import":   SecurityAdmin,
	"admin.stats":            SecurityAdmin,
	"admin.pool":             SecurityAdmin,
	"admin.reconcile":        SecurityAdmin,

	// Files are guarded by their signed URL
	"files.get": SecurityPublic,

	"health":  SecurityPublic,
	"metrics": SecurityPublic,
}

// GetSecurityLevel returns the security level for a given route name
func GetSecurityLevel(route string) SecurityLevel {
	if level, exists := EndpointSecurityConfig[route]; exists {
		return level
	}
	// Default to highest security for unknown endpoints
	return SecurityAdmin
}
