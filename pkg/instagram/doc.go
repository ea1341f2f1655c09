// Package instagram holds the URL shapes and JSON payloads of the network's
// web surface: hashtag and explore grids, profiles, posts and top search.
//
// Post links are deduplicated by their permanent URL, never by grid
// position, so NormalizePostURL is the single place that decides what
// counts as "the same post".
package instagram
