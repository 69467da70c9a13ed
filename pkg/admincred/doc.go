// Package admincred obtains the administrative credential the gateway needs
// for user management calls.
//
// ClientCredentials runs one OAuth2 client-credentials grant per call and is
// the default. Cached can wrap any Acquirer to reuse a credential until it is
// about to expire; it is enabled with ADMIN_TOKEN_CACHE_ENABLED.
//
//	var acquirer admincred.Acquirer = admincred.NewClientCredentials(client, cfg)
//	if cacheEnabled {
//		acquirer = admincred.NewCached(acquirer, skew)
//	}
package admincred
