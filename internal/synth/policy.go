package synth

import "time"

// Resource types backing each detectable service type.
var resourceTypeForService = map[string]string{
	"storage":         "Microsoft.Storage/storageAccounts",
	"database":        "Microsoft.Sql/servers",
	"cache":           "Microsoft.Cache/redis",
	"queue":           "Microsoft.ServiceBus/namespaces",
	"search":          "Microsoft.Search/searchServices",
	"webapp":          "Microsoft.Web/sites",
	"appservice-plan": "Microsoft.Web/serverfarms",
	"keyvault":        "Microsoft.KeyVault/vaults",
}

// Minimum viable SKU per resource type, applied when neither analysis nor
// the schema supplies one.
var minimumSKU = map[string]string{
	"Microsoft.Storage/storageAccounts": "Standard_LRS",
	"Microsoft.Sql/servers":             "GP_S_Gen5_1",
	"Microsoft.Cache/redis":             "Basic_C0",
	"Microsoft.ServiceBus/namespaces":   "Basic",
	"Microsoft.Search/searchServices":   "basic",
	"Microsoft.Web/sites":               "B1",
	"Microsoft.Web/serverfarms":         "B1",
	"Microsoft.KeyVault/vaults":         "standard",
}

// Hardening values applied whenever the schema declares the field, required
// or not. Encryption at rest and transport security are never left to
// chance.
var hardeningDefaults = map[string]string{
	"encryptionAtRest":         "true",
	"supportsHttpsTrafficOnly": "true",
	"httpsOnly":                "true",
	"allowBlobPublicAccess":    "false",
	"enableNonSslPort":         "false",
	"publicNetworkAccess":      "Disabled",
}

// Policy carries the run-level synthesis decisions: target region, tag
// sources, and the clock stamped into generation tags.
type Policy struct {
	Region      string
	Environment string
	ExtraTags   map[string]string
	Now         func() time.Time
}

// DefaultPolicy returns a policy for the given region and environment.
func DefaultPolicy(region, environment string) Policy {
	return Policy{
		Region:      region,
		Environment: environment,
		Now:         time.Now,
	}
}

// ResourceType maps a detected service type to the resource type synthesized
// for it. Unknown service types fall back to a namespaced generic type so the
// gateway can still consult the schema service about them.
func ResourceType(serviceType string) string {
	if resourceType, ok := resourceTypeForService[serviceType]; ok {
		return resourceType
	}
	return "Custom/" + serviceType
}

func (p Policy) tags() map[string]string {
	tags := map[string]string{
		"environment":  p.Environment,
		"generated-by": "cloudforge",
		"generated-at": p.Now().UTC().Format(time.RFC3339),
	}
	for key, value := range p.ExtraTags {
		if _, reserved := tags[key]; reserved {
			continue
		}
		tags[key] = value
	}
	return tags
}
