// Package fixtures provides shared permission documents and claim values
// for the insight-auth test suite.
package fixtures

// Standard claim values used in auth and server tests.
const (
	// Subject is the default token subject.
	Subject = "user-42"

	// Issuer is the default token issuer.
	Issuer = "https://idp.example.com"

	// KeyID is the default JWK key ID.
	KeyID = "test-key-1"
)

// Database names used by permission fixtures.
const (
	// Database1 is protected by the admin role.
	Database1 = "db1"

	// Database2 is absent from every fixture mapping.
	Database2 = "db2"

	// OpsDatabase requires both admin and ops roles, or membership in team x.
	OpsDatabase = "ops"
)

// PermissionsJSON grants db1 to admins, ops to admin+ops or team x, and
// denies unrecognized databases.
const PermissionsJSON = `{
  "redisToPermissionMapping": {
    "db1": [{"role": ["admin"]}],
    "ops": [
      {"role": ["admin", "ops"]},
      {"team": "x"}
    ]
  },
  "allowAccessToUnrecognizedRedises": false
}`

// PermissionsYAML is PermissionsJSON in YAML with unrecognized databases
// allowed.
const PermissionsYAML = `redisToPermissionMapping:
  db1:
    - role: [admin]
  ops:
    - role: [admin, ops]
    - team: x
allowAccessToUnrecognizedRedises: true
`
