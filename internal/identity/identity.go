// Package identity authenticates the actors of the crop market.
//
// Actors (farmers, buyers, operators) present HS256 bearer tokens minted by
// ActorTokens. RequireActor verifies them on mutating routes, and ActingAs
// checks that the id a request acts for matches the token subject. Admin
// tokens may deposit into any wallet.
package identity
