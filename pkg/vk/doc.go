// Package vk talks to the VK API: a throttled, retrying client, a
// cursor-based pager for collection endpoints, and the mapping of
// vendor attachment unions to archive references.
package vk
