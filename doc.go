/*
Package ddns keeps Cloudflare DNS records pointed at this host's public IP address.

Usage will always start with [ddns.New],
which takes a zone ID and the IDs of the A and AAAA records to manage,
and returns the DDNSClient implementation.
New requires a [Provider] implementation for a DNS provider, such as the one registered by [UsingCloudflare].

Each call to RunDDNS makes one pass over the records in order.
For every record it looks up the current public address of the record's family with a [Resolver],
and updates the record only if its content differs.
A record whose address family has no connectivity from this host is skipped;
every other failure stops the pass.
*/
package ddns
