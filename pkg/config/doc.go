// Package config provides application configuration management from a YAML file and environment variables.
//
// # Overview
//
// Defaults are applied first, then the YAML file named by JDS_CONFIG_FILE (if set),
// then environment variables. Environment always wins over the file.
//
// # Configuration Structure
//
// Role to group mapping (comma-separated directory group IDs):
//
//	JDS_GROUPS_ADMINS="3f1c…,9ab2…"
//	JDS_GROUPS_PARTNERS="…"
//	JDS_GROUPS_SFRS_USERS="…"
//
// Operation policies (comma-separated role names):
//
//	JDS_TODO_READ_ROLES="Admins,Partners,SFRSUsers"
//	JDS_TODO_WRITE_ROLES="Admins,Partners"
//
// Directory (Microsoft Graph, app-only):
//
//	JDS_GRAPH_TENANT_ID, JDS_GRAPH_CLIENT_ID, JDS_GRAPH_CLIENT_SECRET
//	JDS_GRAPH_AUTHORITY, JDS_GRAPH_SCOPES, JDS_GRAPH_BASE_URL, JDS_GRAPH_TIMEOUT
//
// Token validation (Azure AD B2C):
//
//	JDS_B2C_INSTANCE="https://contoso.b2clogin.com"
//	JDS_B2C_TENANT="contoso.onmicrosoft.com"
//	JDS_B2C_CLIENT_ID, JDS_B2C_POLICY, JDS_B2C_SCOPE_READ, JDS_B2C_SCOPE_WRITE
//
// Server and storage:
//
//	JDS_PORT="8080"
//	JDS_HEALTH_PORT="9090"
//	JDS_DIRECTORY_TIMEOUT="10s"
//	JDS_STORAGE_TYPE="memory"  # memory, redis
//	JDS_REDIS_URL="redis://localhost:6379/0"
//
// Observability:
//
//	JDS_LOG_LEVEL="info"
//	JDS_OTEL_ENABLED="true"
//	JDS_OTEL_ENDPOINT="localhost:4317"
//
// # Validation
//
// LoadConfig fails when a policy names an unknown role or a role that has no
// groups configured; these are *authz.ConfigurationError values.
package config
