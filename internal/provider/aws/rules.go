package aws

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/santoshpalla27/topograph/internal/provider"
)

func convertPermissions(perms []ec2types.IpPermission) []provider.Rule {
	rules := make([]provider.Rule, 0, len(perms))
	for _, perm := range perms {
		rule := provider.Rule{
			Protocol: normalizeProtocol(aws.ToString(perm.IpProtocol)),
			FromPort: aws.ToInt32(perm.FromPort),
			ToPort:   aws.ToInt32(perm.ToPort),
		}
		for _, pair := range perm.UserIdGroupPairs {
			if id := aws.ToString(pair.GroupId); id != "" {
				rule.ReferencedGroups = append(rule.ReferencedGroups, id)
			}
		}
		for _, r := range perm.IpRanges {
			if cidr := aws.ToString(r.CidrIp); cidr != "" {
				rule.CIDRs = append(rule.CIDRs, cidr)
			}
		}
		for _, r := range perm.Ipv6Ranges {
			if cidr := aws.ToString(r.CidrIpv6); cidr != "" {
				rule.CIDRs = append(rule.CIDRs, cidr)
			}
		}
		rules = append(rules, rule)
	}
	return rules
}

func normalizeProtocol(p string) string {
	switch p {
	case "-1", "":
		return "all"
	case "6":
		return "tcp"
	case "17":
		return "udp"
	case "1":
		return "icmp"
	default:
		return p
	}
}
